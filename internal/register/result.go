package register

// Kind is the transport-level request kind.
type Kind string

const (
	KindSet Kind = "set"
	KindGet Kind = "get"
)

// FormTypeSignedKey namespaces the signed-key response form.
const FormTypeSignedKey = "hermod:register#code"

// Request is the named-field payload handed over by the transport layer.
// PublicKey is base64.
type Request struct {
	Kind      Kind
	Phone     string
	Code      string
	PublicKey string
}

// Principal is the authenticated session identity, if any. An unauthorized
// principal is an anonymous connection attempting first registration.
type Principal struct {
	Identity   string
	Authorized bool
}

// DomainInfo describes the destination domain of a request.
type DomainInfo struct {
	Domain          string
	RegisterEnabled bool
}

// Result is one of *CodeSent, *Registered or *Instructions.
type Result interface {
	isResult()
}

// CodeSent tells the caller to expect an out-of-band code.
type CodeSent struct {
	Instructions string `json:"instructions"`
	From         string `json:"from"`
}

// Registered carries the counter-signed key (base64) and an access token
// for the freshly bound identity.
type Registered struct {
	FormType  string `json:"form_type"`
	PublicKey string `json:"publickey"`
	Token     string `json:"token,omitempty"`
}

// Instructions describes how to start a registration.
type Instructions struct {
	Instructions string   `json:"instructions"`
	Fields       []string `json:"fields"`
}

func (*CodeSent) isResult()     {}
func (*Registered) isResult()   {}
func (*Instructions) isResult() {}

// FailureClass is the outward-facing error class. Every component failure
// is mapped to exactly one class at the orchestrator boundary; no internal
// error type crosses it unmapped.
type FailureClass string

const (
	ClassBadRequest         FailureClass = "bad-request"
	ClassNotAuthorized      FailureClass = "not-authorized"
	ClassInternal           FailureClass = "internal-server-error"
	ClassServiceUnavailable FailureClass = "service-unavailable"
	ClassNotAcceptable      FailureClass = "not-acceptable"
)

// Failure is the typed error returned by the orchestrator.
type Failure struct {
	Class   FailureClass
	Message string
	cause   error
}

func (f *Failure) Error() string {
	return string(f.Class) + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func fail(class FailureClass, message string, cause error) *Failure {
	return &Failure{Class: class, Message: message, cause: cause}
}

// user-facing messages
const (
	msgMalformedRequest = "Please provide either a phone number or a public key and a verification code."
	msgInvalidCode      = "Invalid verification code."
	msgInvalidKey       = "Invalid public key."
	msgBadPhone         = "Bad phone number."
	msgTooManyAttempts  = "Too many attempts."
	msgUnableToSend     = "Unable to send SMS."
	msgNotAllowed       = "Registration is not allowed for this domain."
	msgNotAuthorized    = "You are not authorized to change registration settings."
	msgStorageProblem   = "Storage problem, please contact administrator."
	msgSigningProblem   = "Signing problem, please contact administrator."
	msgBadType          = "Message type is incorrect."
)
