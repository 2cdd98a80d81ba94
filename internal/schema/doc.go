// Package schema describes the resource types a coordinator manages and loads
// them from CUE or YAML files.
//
// A schema is consumed read-only at startup. Declaration order of resources,
// attributes and structural constraints is preserved because the registry
// breaks uniqueness-key ties by it.
//
// CUE layout:
//
//	resource: User: {
//		attributes: {
//			email: string
//			name:  string
//		}
//		uniqueness_key: ["email"]
//	}
//
//	resource: Membership: {
//		attributes: {user: string, org: string, role: string}
//		constraints: [["user", "org"], ["role", "user", "org"]]
//	}
//
// YAML layout:
//
//	resources:
//	  - name: User
//	    attributes: [email, name]
//	    uniqueness_key: [email]
package schema
