package rbac

// Denial and approval reasons reported by Evaluate.
const (
	ReasonGranted = "granted"
	ReasonNoRoles = "no roles"
	ReasonNoMatch = "no matching grant"
)

// Decision is the outcome of an evaluation. Permission is the requirement the
// decision refers to: the satisfied one on allow, the first unmet one on deny.
type Decision struct {
	Allowed    bool
	Reason     string
	Permission Permission
	Source     Source
	Role       RoleName
}

// Satisfies reports whether g covers required in ctx. Organization-scoped grants must
// be bound to the tenant named by the context. Company IDs compare exactly.
func (g Grant) Satisfies(required Permission, ctx EvalContext) bool {
	if !g.Permission.sameCapability(required) {
		return false
	}
	if !g.Permission.Scope.Covers(required.Scope) {
		return false
	}
	if g.Permission.Scope == ScopeOrganization {
		return g.CompanyID != "" && g.CompanyID == ctx.CompanyID
	}
	return true
}

// Evaluate decides whether grants satisfy required. It is deny-by-default and has no
// side effects. A required permission outside the catalog yields a
// ConfigurationError rather than a denial.
func Evaluate(grants []Grant, required Permission, ctx EvalContext) (Decision, error) {
	if !InCatalog(required) {
		return Decision{}, &ConfigurationError{Subject: required.String(), Err: ErrUnknownPermission}
	}
	if len(grants) == 0 {
		return Decision{Reason: ReasonNoRoles, Permission: required}, nil
	}
	for _, g := range grants {
		if g.Satisfies(required, ctx) {
			return Decision{Allowed: true, Reason: ReasonGranted, Permission: required, Source: g.Source, Role: g.Role}, nil
		}
	}
	return Decision{Reason: ReasonNoMatch, Permission: required}, nil
}

// EvaluateAny allows when at least one of required is satisfied. Every requirement is
// checked against the catalog before any decision is made.
func EvaluateAny(grants []Grant, required []Permission, ctx EvalContext) (Decision, error) {
	if err := checkRequired(required); err != nil {
		return Decision{}, err
	}
	var first Decision
	for i, p := range required {
		d, err := Evaluate(grants, p, ctx)
		if err != nil {
			return Decision{}, err
		}
		if d.Allowed {
			return d, nil
		}
		if i == 0 {
			first = d
		}
	}
	return first, nil
}

// EvaluateAll allows only when every requirement is satisfied.
func EvaluateAll(grants []Grant, required []Permission, ctx EvalContext) (Decision, error) {
	if err := checkRequired(required); err != nil {
		return Decision{}, err
	}
	var last Decision
	for _, p := range required {
		d, err := Evaluate(grants, p, ctx)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
		last = d
	}
	return last, nil
}

func checkRequired(required []Permission) error {
	if len(required) == 0 {
		return &ConfigurationError{Subject: "guard", Err: ErrUnknownPermission}
	}
	for _, p := range required {
		if !InCatalog(p) {
			return &ConfigurationError{Subject: p.String(), Err: ErrUnknownPermission}
		}
	}
	return nil
}

// EffectivePermissions lists the distinct catalog permissions grants satisfy in ctx,
// expanding broader grants to every narrower catalog scope they cover.
func EffectivePermissions(grants []Grant, ctx EvalContext) []Permission {
	var out []Permission
	for _, p := range Catalog() {
		for _, g := range grants {
			if g.Satisfies(p, ctx) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
