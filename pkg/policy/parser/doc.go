// Package parser reads policy bundles written in YAML.
//
// A bundle holds policies, policy sets and exemptions. Every construct is
// decoded from the yaml.Node tree so errors point at the offending line:
//
//	policies:
//	  - name: Web Certificates
//	    status: active
//	    enforcement: hard
//	    target: {kind: resource, resource: certificate}
//	    rules:
//	      - id: min-key-size
//	        name: Minimum key size
//	        severity: critical
//	        when: {field: key_size, gte: 2048}
//	      - id: algorithm
//	        name: Allowed algorithms
//	        when:
//	          all:
//	            - {field: algorithm, in: [RSA, ECDSA]}
//	            - not: {field: algorithm, eq: DSA}
//	  - name: Strict Certificates
//	    template:
//	      name: PKI Certificate Policy
//	      params: {min_key_size: 4096}
//
//	policy_sets:
//	  - name: Certificate Baseline
//	    policies: [Web Certificates, Strict Certificates]
//	    composition: majority
//	    conflict_resolution: most_restrictive
//
//	exemptions:
//	  - policy: Web Certificates
//	    reason: legacy HSM
//	    approved_by: ciso
//	    valid_from: 2026-01-01T00:00:00Z
//	    valid_until: 2026-06-30T00:00:00Z
//	    scope: {kind: resource, resource: hsm-01}
//
// # Expressions
//
// A rule's "when" is a mapping. Combinators are "all", "any" and "not".
// Leaf comparisons name a field and exactly one operator key: eq, ne, gt,
// gte, lt, lte, in, not_in, contains, matches, starts_with, ends_with,
// exists or not_exists. Custom predicates use {custom: name, args: {...}}.
// Scalar tags select the value kind: integers, floats, booleans, strings,
// unquoted timestamps and null. Sequences become lists and mappings maps.
//
// # Identifiers
//
// Entries without an explicit id get a name-derived UUID (SHA-1, fixed
// namespace). Reloading an unchanged bundle yields the same identifiers.
package parser
