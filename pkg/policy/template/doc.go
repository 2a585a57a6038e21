// Package template builds Draft policies from parameterized templates.
//
// A Template carries base rules whose values may be placeholders of the form
// "${name}". Instantiate resolves the parameters in four steps:
//
//  1. type-check every provided value against the parameter type
//  2. fill defaults and reject missing required parameters
//  3. run each parameter's validation expression against a context holding
//     the candidate under the field "value"
//  4. substitute placeholders in rule expressions and rule texts
//
// An "in" or "not in" rule whose only value is a placeholder bound to a list
// parameter expands to the list elements.
//
// The Engine ships with three built-in templates: "PKI Certificate Policy",
// "Authorization Policy" and "Compliance Policy".
package template
