package entity

import (
	"encoding/base64"
	"testing"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

func TestSplitPodName(t *testing.T) {
	cases := []struct {
		name           string
		pod            string
		wantDeployment string
		wantReplicaSet string
		wantStandalone bool
	}{
		{
			name:           "four segments",
			pod:            "orders-api-7f9c8-xk2p1",
			wantDeployment: "orders-api",
			wantReplicaSet: "orders-api-7f9c8",
		},
		{
			name:           "three segments",
			pod:            "cart-6b9d4f-ab12c",
			wantDeployment: "cart",
			wantReplicaSet: "cart-6b9d4f",
		},
		{
			name:           "two segments is standalone",
			pod:            "standalone-pod",
			wantDeployment: ValueNA,
			wantReplicaSet: ValueNA,
			wantStandalone: true,
		},
		{
			name:           "single segment is standalone",
			pod:            "toolbox",
			wantDeployment: ValueNA,
			wantReplicaSet: ValueNA,
			wantStandalone: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deployment, replicaSet, standalone := SplitPodName(tc.pod)
			if deployment != tc.wantDeployment || replicaSet != tc.wantReplicaSet || standalone != tc.wantStandalone {
				t.Fatalf("SplitPodName(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tc.pod, deployment, replicaSet, standalone,
					tc.wantDeployment, tc.wantReplicaSet, tc.wantStandalone)
			}
		})
	}
}

func TestResolveAttributeAliases(t *testing.T) {
	attrs := []models.Attr{
		{Name: "K8S.Namespace.Name", Value: "payments"},
		{Name: "pod", Value: "orders-api-7f9c8-xk2p1"},
		{Name: "host_name", Value: "node-3"},
		{Name: "ipv4", Value: "10.4.2.19"},
		{Name: "container_port", Value: "8080"},
	}

	e := Resolver{}.Resolve("opaque-id", attrs)
	if e.Namespace != "payments" {
		t.Errorf("namespace = %q", e.Namespace)
	}
	if e.NodeName != "node-3" {
		t.Errorf("node = %q", e.NodeName)
	}
	if e.PodIP != "10.4.2.19" {
		t.Errorf("pod ip = %q", e.PodIP)
	}
	if e.Port != "8080" {
		t.Errorf("port = %q", e.Port)
	}
	if e.Deployment != "orders-api" || e.ReplicaSet != "orders-api-7f9c8" {
		t.Errorf("hierarchy = (%q, %q)", e.Deployment, e.ReplicaSet)
	}
}

func TestResolveFirstAliasWins(t *testing.T) {
	attrs := []models.Attr{
		{Name: "k8s.pod.ip", Value: "10.0.0.2"},
		{Name: "pod_ip", Value: "10.0.0.1"},
	}
	e := Resolver{}.Resolve("id", attrs)
	if e.PodIP != "10.0.0.1" {
		t.Fatalf("pod ip = %q, want the higher-priority alias value", e.PodIP)
	}
}

func TestResolveMissingFieldsAreSentinels(t *testing.T) {
	e := Resolver{}.Resolve("standalone-pod", nil)
	if e.Namespace != ValueNA || e.NodeName != ValueNA || e.PodIP != ValueNA {
		t.Fatalf("missing attributes did not resolve to sentinel: %+v", e)
	}
	if !e.Standalone {
		t.Fatalf("two-segment raw id should classify standalone")
	}
	if e.ServiceName != UnknownService {
		t.Fatalf("service = %q, want unknown sentinel", e.ServiceName)
	}
}

func TestResolveServiceNameFromInstanceID(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("k8s-cluster::checkout.payments"))
	rawID := encoded + ".1_cG9kLTEyMw=="

	e := Resolver{}.Resolve(rawID, []models.Attr{{Name: "pod", Value: "checkout-5d9f7-ab1cd"}})
	if e.ServiceName != "checkout" {
		t.Fatalf("service = %q, want checkout", e.ServiceName)
	}
}

func TestResolveFallsBackToDeploymentName(t *testing.T) {
	attrs := []models.Attr{
		{Name: "pod", Value: "orders-api-7f9c8-xk2p1"},
		{Name: "namespace", Value: "shop"},
	}
	e := Resolver{}.Resolve("not base64!", attrs)
	if e.ServiceName != "orders-api" {
		t.Fatalf("service = %q, want deployment fallback", e.ServiceName)
	}
}

func TestQualifiedServiceName(t *testing.T) {
	r := Resolver{ClusterPrefix: "k8s-cluster", Qualify: true}

	cases := []struct {
		name string
		e    ResolvedEntity
		want string
	}{
		{
			name: "bare name gains namespace and cluster",
			e:    ResolvedEntity{ServiceName: "checkout", Namespace: "payments"},
			want: "k8s-cluster::checkout.payments",
		},
		{
			name: "qualified name passes through",
			e:    ResolvedEntity{ServiceName: "other::checkout.payments", Namespace: "payments"},
			want: "other::checkout.payments",
		},
		{
			name: "unknown service synthesized from deployment",
			e:    ResolvedEntity{ServiceName: UnknownService, Deployment: "orders-api", Namespace: "shop"},
			want: "k8s-cluster::orders-api.shop",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.QualifiedServiceName(tc.e); got != tc.want {
				t.Fatalf("QualifiedServiceName = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestQualifiedServiceNameDisabled(t *testing.T) {
	r := Resolver{}
	e := ResolvedEntity{ServiceName: "checkout", Namespace: "payments"}
	if got := r.QualifiedServiceName(e); got != "checkout" {
		t.Fatalf("unqualified backend got %q, want raw name", got)
	}
}
