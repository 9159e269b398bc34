// mock-oap is a local stand-in for a SkyWalking OAP backend. It answers the
// GraphQL operations skyobserv issues with canned telemetry so the dashboard
// can be exercised without a cluster.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/graphql", handleGraphQL)

	addr := ":12800"
	log.Printf("mock-oap listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeErrors(w, "invalid request body")
		return
	}

	switch {
	case strings.Contains(payload.Query, "getAllServices"):
		writeData(w, map[string]any{"services": mockServices()})
	case strings.Contains(payload.Query, "getLinearIntValues"):
		writeData(w, map[string]any{"getLinearIntValues": map[string]any{"values": mockSeries()}})
	case strings.Contains(payload.Query, "queryBasicTraces"):
		writeData(w, map[string]any{"queryBasicTraces": map[string]any{"traces": mockTraces()}})
	case strings.Contains(payload.Query, "queryTrace"):
		writeData(w, map[string]any{"trace": map[string]any{"spans": mockSpans()}})
	case strings.Contains(payload.Query, "getGlobalTopology"):
		writeData(w, map[string]any{"topology": mockTopology()})
	case strings.Contains(payload.Query, "getServiceInstances"):
		writeData(w, map[string]any{"instances": mockInstances()})
	case strings.Contains(payload.Query, "findEndpoint"):
		writeData(w, map[string]any{"endpoints": []map[string]any{
			{"id": "ep-1", "name": "/api/checkout"},
			{"id": "ep-2", "name": "/api/cart"},
		}})
	case strings.Contains(payload.Query, "execExpression"):
		writeData(w, map[string]any{"execExpression": mockExpression()})
	default:
		writeErrors(w, "unsupported operation")
	}
}

func mockServices() []map[string]any {
	return []map[string]any{
		{"id": "svc-checkout", "name": "checkout", "shortName": "checkout", "layers": []string{"GENERAL"}, "normal": true},
		{"id": "svc-cart", "name": "cart", "shortName": "cart", "layers": []string{"GENERAL"}, "normal": true},
		{"id": "svc-legacy", "name": "legacy-billing", "shortName": "legacy-billing", "layers": []string{"GENERAL"}, "normal": false},
	}
}

func mockSeries() []map[string]any {
	base := time.Now().UTC().Add(-15 * time.Minute)
	values := make([]map[string]any, 0, 15)
	for i := 0; i < 15; i++ {
		bucket := base.Add(time.Duration(i) * time.Minute).Format("200601021504")
		v := map[string]any{"id": bucket, "value": 100 + 10*i}
		if i%7 == 3 {
			v["value"] = nil
		}
		values = append(values, v)
	}
	return values
}

func mockTraces() []map[string]any {
	now := time.Now().UnixMilli()
	return []map[string]any{
		{
			"key": "t-1", "endpointNames": []string{"/api/checkout"}, "duration": 420,
			"start": fmt.Sprintf("%d", now-60_000), "isError": false, "traceIds": []string{"trace-1"},
		},
		{
			"key": "t-2", "endpointNames": []string{"/api/cart"}, "duration": 1800,
			"start": fmt.Sprintf("%d", now-30_000), "isError": true, "traceIds": []string{"trace-2"},
		},
	}
}

func mockSpans() []map[string]any {
	now := time.Now().UnixMilli()
	return []map[string]any{
		{
			"traceId": "trace-1", "spanId": 0, "parentSpanId": -1, "serviceCode": "checkout",
			"startTime": now - 500, "endTime": now - 80, "endpointName": "/api/checkout",
			"type": "Entry", "layer": "Http", "isError": false,
		},
		{
			"traceId": "trace-1", "spanId": 1, "parentSpanId": 0, "serviceCode": "checkout",
			"startTime": now - 400, "endTime": now - 350, "endpointName": "Mysql/JDBC/PreparedStatement/execute",
			"type": "Exit", "layer": "Database", "component": "mysql-connector-java", "peer": "mysql:3306",
			"isError": false,
			"tags": []map[string]string{
				{"key": "db.statement", "value": "SELECT id, total FROM orders WHERE user_id = ?"},
			},
		},
		{
			"traceId": "trace-1", "spanId": 2, "parentSpanId": 0, "serviceCode": "checkout",
			"startTime": now - 300, "endTime": now - 290, "endpointName": "Redis/GET",
			"type": "Exit", "layer": "Cache", "component": "redis", "peer": "redis:6379",
			"isError": false,
			"tags": []map[string]string{
				{"key": "redis.command", "value": "GET cart:42"},
			},
		},
	}
}

func mockTopology() map[string]any {
	return map[string]any{
		"nodes": []map[string]any{
			{"id": "svc-gateway", "name": "gateway", "type": "Nginx", "isReal": true},
			{"id": "svc-checkout", "name": "checkout", "type": "Go", "isReal": true},
			{"id": "db-mysql", "name": "mysql:3306", "type": "Mysql", "isReal": false},
		},
		"calls": []map[string]any{
			{"id": "gw-co", "source": "svc-gateway", "target": "svc-checkout", "detectPoints": []string{"SERVER"}},
			{"id": "co-db", "source": map[string]any{"id": "svc-checkout"}, "target": map[string]any{"id": "db-mysql"}},
			// Deliberately dangling so the validation path is visible locally.
			{"id": "co-ghost", "source": "svc-checkout", "target": "svc-retired"},
		},
	}
}

func mockInstances() []map[string]any {
	serviceB64 := base64.StdEncoding.EncodeToString([]byte("k8s-cluster::checkout.payments"))
	return []map[string]any{
		{
			"id":       serviceB64 + ".1_" + base64.StdEncoding.EncodeToString([]byte("checkout-7f9c8-xk2p1")),
			"name":     "checkout-7f9c8-xk2p1",
			"language": "GO",
			"attributes": []map[string]string{
				{"name": "namespace", "value": "payments"},
				{"name": "pod", "value": "checkout-7f9c8-xk2p1"},
				{"name": "node_name", "value": "node-2"},
				{"name": "pod_ip", "value": "10.4.2.19"},
				{"name": "container_port", "value": "8080"},
			},
		},
	}
}

func mockExpression() map[string]any {
	buckets := mockSeries()
	for i := range buckets {
		if buckets[i]["value"] == nil {
			buckets[i]["value"] = "null"
		} else {
			buckets[i]["value"] = fmt.Sprintf("%v", buckets[i]["value"])
		}
	}
	return map[string]any{
		"type":  "TIME_SERIES_VALUES",
		"error": "",
		"results": []map[string]any{
			{
				"metric": map[string]any{"labels": []map[string]string{{"key": "phase", "value": "Running"}}},
				"values": []map[string]any{{"id": "latest", "value": "1"}},
			},
			{
				"metric": map[string]any{"labels": []map[string]string{}},
				"values": buckets,
			},
		},
	}
}

func writeData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErrors(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"message": message}},
	})
}
