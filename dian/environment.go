package dian

import (
	"net/url"
	"strconv"
	"strings"
)

// Environment selects the DIAN service set. Values match the DIAN
// "TipoAmbiente" code carried in the CUFE and in cbc:ProfileExecutionID.
type Environment int

const (
	Production    Environment = 1
	Certification Environment = 2
)

func (e Environment) Valid() bool {
	return e == Production || e == Certification
}

func (e Environment) Name() string {
	switch e {
	case Production:
		return "production"
	case Certification:
		return "certification"
	}
	return "unknown"
}

func (e Environment) String() string {
	return e.Name()
}

func (e Environment) AmbientCode() string {
	return strconv.Itoa(int(e))
}

func (e Environment) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, Configurationf("invalid environment %d", int(e))
	}
	return []byte(e.Name()), nil
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "production", "prod", "produccion", "1":
		*e = Production
	case "certification", "habilitacion", "hab", "test", "2":
		*e = Certification
	default:
		return Configurationf("invalid DIAN_ENV: %q (allowed: production, certification)", val)
	}
	return nil
}

// ServiceKind names one of the three services each environment exposes.
type ServiceKind int

const (
	Submission ServiceKind = iota + 1
	Validation
	StatusQuery
)

func (k ServiceKind) String() string {
	switch k {
	case Submission:
		return "submission"
	case Validation:
		return "validation"
	case StatusQuery:
		return "status-query"
	}
	return "unknown"
}

// Endpoints is the absolute URL bundle of one environment.
type Endpoints struct {
	Submission  string
	Validation  string
	StatusQuery string
}

func (e Endpoints) url(kind ServiceKind) (string, bool) {
	switch kind {
	case Submission:
		return e.Submission, true
	case Validation:
		return e.Validation, true
	case StatusQuery:
		return e.StatusQuery, true
	}
	return "", false
}

func (e Endpoints) validate(env Environment) error {
	for _, kind := range []ServiceKind{Submission, Validation, StatusQuery} {
		raw, _ := e.url(kind)
		u, err := url.Parse(raw)
		if err != nil {
			return &ConfigurationError{Message: env.Name() + " " + kind.String() + " endpoint", Err: err}
		}
		if !u.IsAbs() || u.Host == "" {
			return Configurationf("%s %s endpoint must be an absolute URL, got %q", env, kind, raw)
		}
	}
	return nil
}

func DefaultEndpoints() map[Environment]Endpoints {
	return map[Environment]Endpoints{
		Production: {
			Submission:  "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc",
			Validation:  "https://catalogo-vpfe.dian.gov.co/User/SearchDocument",
			StatusQuery: "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc/GetStatus",
		},
		Certification: {
			Submission:  "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc",
			Validation:  "https://catalogo-vpfe-hab.dian.gov.co/User/SearchDocument",
			StatusQuery: "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc/GetStatus",
		},
	}
}
