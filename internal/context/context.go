// Package context provides multi-tenancy support via registry contexts.
//
// A context is a namespace for subjects, schemas, config and mode: every
// record the core tracks is scoped to exactly one context. Contexts are not
// created or deleted explicitly — they come into existence the first time a
// record is written under them and are reconstructed by the lookup cache as
// it replays the log, the same way subjects are.
//
// A context's own name always carries its leading dot, e.g. ".production";
// the implicit default context is named "." itself. A subject qualified
// with a non-default context is written as ":<context>:<subject>", e.g.
// ":.production:orders-value".
package context

import (
	"context"
	"strings"
)

// DefaultContext is the implicit context used when a subject name carries no
// context qualifier.
const DefaultContext = "."

// GlobalContext is the Confluent-compatible pseudo-context used for the
// instance-wide config and mode that exist outside of any real context.
// Subject and schema operations are not permitted against it.
const GlobalContext = "__GLOBAL"

// QualifySubject formats subject as a context-qualified name, e.g.
// QualifySubject(".tenant-a", "orders-value") -> ":.tenant-a:orders-value".
// The default context never qualifies: the plain subject is returned as-is.
func QualifySubject(contextName, subject string) string {
	if contextName == "" || contextName == DefaultContext {
		return subject
	}
	return ":" + contextName + ":" + subject
}

// ResolveSubject splits a possibly context-qualified subject name into its
// context and bare subject. Unqualified names, and names that only look
// like a qualifier (no closing colon, or an empty context name as in the
// ":.:" default marker), resolve to DefaultContext with the subject
// returned as-is.
//
// Format: ":.<context>:<subject>", e.g. ":.tenant-a:orders-value". The
// special name __GLOBAL never carries the leading dot.
func ResolveSubject(subject string) (contextName, resolvedSubject string) {
	if !strings.HasPrefix(subject, ":.") {
		return DefaultContext, subject
	}
	rest := subject[2:]
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return DefaultContext, subject
	}
	name := rest[:idx]
	bareSubject := rest[idx+1:]
	if name == GlobalContext {
		return GlobalContext, bareSubject
	}
	return "." + name, bareSubject
}

// NormalizeContextName canonicalizes a context name taken from a URL path
// segment. An empty name or the explicit default marker ":.:" normalizes to
// DefaultContext; a name not already carrying its leading dot gets one
// prepended.
func NormalizeContextName(name string) string {
	if name == "" || name == ":.:" {
		return DefaultContext
	}
	if strings.HasPrefix(name, ".") {
		return name
	}
	return "." + name
}

// IsValidContextName reports whether name is an acceptable context name.
// The default and global contexts are always valid regardless of charset.
func IsValidContextName(name string) bool {
	if name == DefaultContext || name == GlobalContext {
		return true
	}
	if name == "" || len(name) > 255 {
		return false
	}
	for _, c := range name {
		if !isAlphaNumeric(c) && c != '-' && c != '_' && c != '.' {
			return false
		}
	}
	return true
}

// IsGlobalContext reports whether name refers to the global pseudo-context.
func IsGlobalContext(name string) bool {
	return name == GlobalContext
}

func isAlphaNumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// contextKey is the type used for the request-scoped registry context value.
type contextKey int

const registryContextKey contextKey = 0

// WithRegistryContext attaches the resolved registry context name to ctx.
func WithRegistryContext(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, registryContextKey, name)
}

// RegistryContextFromRequest returns the registry context name previously
// attached with WithRegistryContext, or DefaultContext if none was set.
func RegistryContextFromRequest(ctx context.Context) string {
	if v := ctx.Value(registryContextKey); v != nil {
		if name, ok := v.(string); ok && name != "" {
			return name
		}
	}
	return DefaultContext
}
