// Package rules defines the data model shared by the catalog builder,
// the call-site resolver, and the template instantiator.
package rules

// ConstructKind identifies which kind of declaration a rule came from.
type ConstructKind string

const (
	// KindFunction is a free function
	KindFunction ConstructKind = "function"
	// KindMethod is an instance method
	KindMethod ConstructKind = "method"
	// KindClassMethod is a classmethod
	KindClassMethod ConstructKind = "classmethod"
	// KindStaticMethod is a staticmethod
	KindStaticMethod ConstructKind = "staticmethod"
	// KindProperty is a property getter
	KindProperty ConstructKind = "property"
	// KindClass is a class whose constructor is deprecated
	KindClass ConstructKind = "class"
	// KindModuleAttribute is a module-level attribute
	KindModuleAttribute ConstructKind = "module-attribute"
	// KindClassAttribute is a class-level attribute
	KindClassAttribute ConstructKind = "class-attribute"
)

// ParameterInfo describes one formal parameter of a deprecated declaration.
type ParameterInfo struct {
	Name        string `msgpack:"name" json:"name"`
	HasDefault  bool   `msgpack:"hasDefault" json:"hasDefault,omitempty"`
	DefaultText string `msgpack:"defaultText" json:"defaultText,omitempty"`
	IsVararg    bool   `msgpack:"isVararg" json:"isVararg,omitempty"`
	IsKwarg     bool   `msgpack:"isKwarg" json:"isKwarg,omitempty"`
	IsKwonly    bool   `msgpack:"isKwonly" json:"isKwonly,omitempty"`
}

// ReplacementRule describes one deprecated symbol and its replacement
// template. Rules are immutable once a module scan completes.
type ReplacementRule struct {
	// OldFQN is the dotted fully qualified name of the deprecated symbol.
	OldFQN string `msgpack:"oldFqn" json:"oldFqn"`

	// TemplateText is the replacement expression exactly as written in
	// the declaration body. Empty means the call is fully elidable.
	TemplateText string `msgpack:"template" json:"template"`

	// Params are the declaration's formal parameters in order.
	Params []ParameterInfo `msgpack:"params" json:"params,omitempty"`

	// Kind is the construct kind of the declaration.
	Kind ConstructKind `msgpack:"kind" json:"kind"`

	// Since is the version the symbol was deprecated in.
	Since string `msgpack:"since" json:"since,omitempty"`

	// RemoveIn is the version the symbol is scheduled for removal in.
	RemoveIn string `msgpack:"removeIn" json:"removeIn,omitempty"`

	// Message is the free-form deprecation message.
	Message string `msgpack:"message" json:"message,omitempty"`
}

// Elidable reports whether the rule has an empty template, meaning
// calls are removed outright.
func (r *ReplacementRule) Elidable() bool {
	return r.TemplateText == ""
}

// HasReceiver reports whether the rule's first parameter binds the
// receiver (self/cls) rather than a call argument.
func (r *ReplacementRule) HasReceiver() bool {
	switch r.Kind {
	case KindMethod, KindClassMethod, KindProperty, KindClass:
		return true
	}
	return false
}

// NamedParams returns the parameters bindable by position or keyword:
// everything except the receiver, the vararg, and the kwarg.
func (r *ReplacementRule) NamedParams() []ParameterInfo {
	params := r.Params
	if r.HasReceiver() && len(params) > 0 {
		params = params[1:]
	}
	out := make([]ParameterInfo, 0, len(params))
	for _, p := range params {
		if p.IsVararg || p.IsKwarg {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Vararg returns the *args parameter, if declared.
func (r *ReplacementRule) Vararg() (ParameterInfo, bool) {
	for _, p := range r.Params {
		if p.IsVararg {
			return p, true
		}
	}
	return ParameterInfo{}, false
}

// Kwarg returns the **kwargs parameter, if declared.
func (r *ReplacementRule) Kwarg() (ParameterInfo, bool) {
	for _, p := range r.Params {
		if p.IsKwarg {
			return p, true
		}
	}
	return ParameterInfo{}, false
}

// ReceiverName returns the declared receiver parameter name
// (conventionally self or cls), or "" when the rule has none.
func (r *ReplacementRule) ReceiverName() string {
	if !r.HasReceiver() || len(r.Params) == 0 {
		return ""
	}
	return r.Params[0].Name
}

// UnreplaceableReason classifies why a decorated symbol does not fit
// the template shape.
type UnreplaceableReason string

const (
	// ReasonMultipleStatements means the body has more than one
	// meaningful statement.
	ReasonMultipleStatements UnreplaceableReason = "multiple-statements"
	// ReasonNoReturnStatement means the single statement is not a
	// return of an expression.
	ReasonNoReturnStatement UnreplaceableReason = "no-return-statement"
	// ReasonNoInitMethod means a deprecated class has no usable
	// __init__ assignment.
	ReasonNoInitMethod UnreplaceableReason = "no-init-method"
)

// UnreplaceableRecord is an informational diagnostic for a deprecated
// symbol that could not yield a rule. It never blocks other symbols.
type UnreplaceableRecord struct {
	FQN     string              `msgpack:"fqn" json:"fqn"`
	Reason  UnreplaceableReason `msgpack:"reason" json:"reason"`
	Message string              `msgpack:"message" json:"message,omitempty"`
}
