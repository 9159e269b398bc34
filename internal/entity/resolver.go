// Package entity derives canonical backend entity keys from opaque instance
// ids and the heterogeneous attribute bags observability agents report.
// Resolution never fails: missing fields surface as explicit sentinels so
// display code needs no defensive nil checks.
package entity

import (
	"encoding/base64"
	"strings"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// Sentinels returned for unresolvable fields.
const (
	ValueNA        = "N/A"
	UnknownService = "Unknown Service"
)

// Scope identifies the kind of entity a resolved key addresses.
type Scope string

const (
	ScopeService         Scope = "Service"
	ScopeServiceInstance Scope = "ServiceInstance"
	ScopeEndpoint        Scope = "Endpoint"
)

// ResolvedEntity is the normalized query key for one instance. It is built
// fresh per query and never cached across time windows, because attribute
// values such as the pod IP can change between windows.
type ResolvedEntity struct {
	Scope        Scope
	ServiceName  string
	InstanceName string
	Namespace    string
	NodeName     string
	PodIP        string
	Port         string
	Deployment   string
	ReplicaSet   string
	// Standalone is set when the pod name carries no controller hierarchy.
	Standalone bool
}

// Attribute-name aliases per field, tried in order; first match wins.
// Agents disagree on naming, so every known spelling is listed.
var (
	namespaceAliases = []string{"namespace", "k8s.namespace.name"}
	podAliases       = []string{"pod", "k8s.pod.name"}
	nodeAliases      = []string{"node_name", "host_name", "k8s.node.name"}
	podIPAliases     = []string{"pod_ip", "k8s.pod.ip", "ipv4", "ip"}
	portAliases      = []string{"k8s.service.port", "container_port", "port"}
)

// Resolver derives entity keys. Name qualification is scope-dependent, so a
// Resolver is parameterized with the conventions of the backend it targets
// instead of hard-coding them.
type Resolver struct {
	// ClusterPrefix is prepended as "<prefix>::" to service names that lack
	// a cluster scope, when Qualify is set.
	ClusterPrefix string
	// Qualify controls whether service names are fully qualified with a
	// namespace suffix and cluster prefix. Backends configured without
	// qualified naming must leave this off or lookups break.
	Qualify bool
}

// Resolve derives the canonical entity key for a raw instance id and its
// attribute bag.
func (r Resolver) Resolve(rawID string, attrs []models.Attr) ResolvedEntity {
	e := ResolvedEntity{
		Scope:        ScopeServiceInstance,
		InstanceName: rawID,
		Namespace:    lookupAttr(attrs, namespaceAliases),
		NodeName:     lookupAttr(attrs, nodeAliases),
		PodIP:        lookupAttr(attrs, podIPAliases),
		Port:         lookupAttr(attrs, portAliases),
	}

	podName := lookupAttr(attrs, podAliases)
	if podName == ValueNA {
		podName = rawID
	}
	e.Deployment, e.ReplicaSet, e.Standalone = SplitPodName(podName)

	e.ServiceName = serviceNameFromID(rawID)
	if e.ServiceName == UnknownService && !e.Standalone {
		e.ServiceName = e.Deployment
	}
	return e
}

// QualifiedServiceName normalizes a service name for the resolver's target
// backend: an unknown name is synthesized from the deployment and namespace,
// a missing ".namespace" suffix is appended, and a missing cluster scope is
// prefixed. Without Qualify the name passes through untouched.
func (r Resolver) QualifiedServiceName(e ResolvedEntity) string {
	name := e.ServiceName
	if name == "" || name == UnknownService {
		name = e.Deployment + "." + e.Namespace
	}
	if !r.Qualify {
		return name
	}
	if !strings.Contains(name, ".") && e.Namespace != "" && e.Namespace != ValueNA {
		name += "." + e.Namespace
	}
	if !strings.Contains(name, "::") && r.ClusterPrefix != "" {
		name = r.ClusterPrefix + "::" + name
	}
	return name
}

// SplitPodName infers the controller hierarchy from a dash-delimited pod
// name: the last segment is the pod suffix, dropping it yields the
// ReplicaSet and dropping two segments yields the Deployment. Names with
// fewer than three segments carry no hierarchy and are classified
// standalone.
func SplitPodName(podName string) (deployment, replicaSet string, standalone bool) {
	parts := strings.Split(podName, "-")
	if len(parts) < 3 {
		return ValueNA, ValueNA, true
	}
	return strings.Join(parts[:len(parts)-2], "-"), strings.Join(parts[:len(parts)-1], "-"), false
}

// serviceNameFromID recovers the human service name embedded in an instance
// id. Ids follow "<base64(service)>.<seq>_<base64(instance)>"; the decoded
// service part follows "<cluster>::<name>.<namespace>". Any decoding failure
// yields the unknown sentinel rather than an error.
func serviceNameFromID(rawID string) string {
	b64 := rawID
	if i := strings.IndexByte(b64, '_'); i >= 0 {
		b64 = b64[:i]
	}
	if i := strings.IndexByte(b64, '.'); i >= 0 {
		b64 = b64[:i]
	}
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return UnknownService
	}
	full := string(decoded)
	if i := strings.Index(full, "::"); i >= 0 {
		full = full[i+2:]
	}
	if i := strings.IndexByte(full, '.'); i >= 0 {
		full = full[:i]
	}
	if full == "" {
		return UnknownService
	}
	return full
}

// lookupAttr returns the first non-empty value among the alias names,
// matching case-insensitively, or the N/A sentinel.
func lookupAttr(attrs []models.Attr, aliases []string) string {
	for _, alias := range aliases {
		for _, a := range attrs {
			if strings.EqualFold(a.Name, alias) && a.Value != "" {
				return a.Value
			}
		}
	}
	return ValueNA
}
