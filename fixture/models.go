package fixture

// Flat schema: the recorder's own JSON shape. Headers are single-valued and
// the response body is a bare string. Pointer fields distinguish a missing
// field from a zero value so conversion can reject incomplete interactions.

type FlatCassette struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Interactions []FlatInteraction `json:"interactions" yaml:"interactions"`
}

type FlatInteraction struct {
	Request  FlatRequest  `json:"request" yaml:"request"`
	Response FlatResponse `json:"response" yaml:"response"`
}

type FlatRequest struct {
	Method  *string           `json:"method" yaml:"method"`
	URL     *string           `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Body    *string           `json:"body,omitempty" yaml:"body,omitempty"`
}

type FlatResponse struct {
	StatusCode *int              `json:"status_code" yaml:"status_code"`
	Status     *string           `json:"status,omitempty" yaml:"status,omitempty"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Body       *string           `json:"body" yaml:"body"`
}

// Nested schema: the replay library's shape. Headers are ordered value lists,
// the request always carries a form map and the response body is wrapped
// under "string". Field order matches the library's sorted key order.

type NestedCassette struct {
	Interactions []NestedInteraction `json:"interactions" yaml:"interactions"`
}

type NestedInteraction struct {
	Request  NestedRequest  `json:"request" yaml:"request"`
	Response NestedResponse `json:"response" yaml:"response"`
}

type NestedRequest struct {
	Body    *string             `json:"body" yaml:"body"`
	Form    map[string][]string `json:"form" yaml:"form"`
	Headers map[string][]string `json:"headers" yaml:"headers"`
	Method  string              `json:"method" yaml:"method"`
	URI     string              `json:"uri" yaml:"uri"`
}

type NestedResponse struct {
	Body    NestedBody          `json:"body" yaml:"body"`
	Code    int                 `json:"code" yaml:"code"`
	Headers map[string][]string `json:"headers" yaml:"headers"`
	Status  string              `json:"status,omitempty" yaml:"status,omitempty"`
}

type NestedBody struct {
	String string `json:"string" yaml:"string"`
}
