package authz

import "errors"

// Denial codes. Stable machine identifiers: clients switch on them, so
// they never change spelling.
const (
	CodeMissingTokenHeader  = "missing_token_header"
	CodeInvalidToken        = "invalid_token"
	CodeExpiredToken        = "expired_token"
	CodeInvalidServiceToken = "invalid_service_token"
	CodeServiceInactive     = "service_inactive"
	CodeInvalidRequestBody  = "invalid_request_body"
	CodeInvalidServiceID    = "invalid_service_id"
)

const CodeInvalidCredentials = "invalid_credentials"

// details are the human sentences shipped alongside the unauthorized
// machine codes. Clients switch on the code; the sentence is for people.
var details = map[string]string{
	CodeMissingTokenHeader:  "header token ausente o vacío; envía token: <valor> en cada petición",
	CodeInvalidToken:        "token inválido o revocado; realiza login para obtener uno nuevo",
	CodeExpiredToken:        "token expirado; solicita un token nuevo iniciando sesión",
	CodeInvalidCredentials:  "usuario o contraseña incorrectos",
	CodeInvalidServiceToken: "solicitud no autorizada",
	CodeServiceInactive:     "solicitud no autorizada",
}

// Detail returns the human sentence for a code, or empty when the code
// carries none. Only the unauthorized family ships one.
func Detail(code string) string { return details[code] }

// Denial is a typed refusal. Anything else coming out of the orchestrator
// is a store error and maps to a 500.
type Denial struct {
	Code string
}

func (d *Denial) Error() string { return d.Code }

func deny(code string) error { return &Denial{Code: code} }

// DenialCode unwraps the machine code, if err is a denial.
func DenialCode(err error) (string, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d.Code, true
	}
	return "", false
}
