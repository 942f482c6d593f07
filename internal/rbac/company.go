package rbac

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/workforcehub/workforcehub/internal/shared"
)

// CompanyHeader carries the selected tenant for API clients without a session.
const CompanyHeader = "X-Company-ID"

// CompanySelector derives the evaluation context of a request.
type CompanySelector interface {
	SelectCompany(r *http.Request) EvalContext
}

// CompanySelectorFunc adapts a function to CompanySelector.
type CompanySelectorFunc func(r *http.Request) EvalContext

// SelectCompany implements CompanySelector.
func (f CompanySelectorFunc) SelectCompany(r *http.Request) EvalContext {
	return f(r)
}

// DefaultCompanySelector prefers the route parameter, then the company header, then
// the company stored on the session.
var DefaultCompanySelector CompanySelector = CompanySelectorFunc(selectCompany)

func selectCompany(r *http.Request) EvalContext {
	if id := strings.TrimSpace(chi.URLParam(r, "companyID")); id != "" {
		return EvalContext{CompanyID: id}
	}
	if id := strings.TrimSpace(r.Header.Get(CompanyHeader)); id != "" {
		return EvalContext{CompanyID: id}
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return EvalContext{CompanyID: sess.ActiveCompany()}
	}
	return EvalContext{}
}
