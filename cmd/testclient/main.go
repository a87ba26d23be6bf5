package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "voice-search-assistant/internal/api/grpc"
	"voice-search-assistant/internal/assistant"
)

func main() {
	baseURL := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC health address")
	query := flag.String("query", "current state of the retail industry", "Query to submit")
	repeat := flag.Int("repeat", 2, "Times to submit the query")
	flag.Parse()

	checkHealth(*grpcAddr)

	client := &http.Client{Timeout: 10 * time.Second}

	var st assistant.State
	if err := call(client, http.MethodPost, *baseURL+"/v1/sessions", nil, &st); err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	log.Printf("Created session %s (language=%s mode=%s)", st.SessionID, st.Language, st.Mode)

	sessionURL := *baseURL + "/v1/sessions/" + st.SessionID
	defer func() {
		if err := call(client, http.MethodDelete, sessionURL, nil, nil); err != nil {
			log.Printf("failed to delete session: %v", err)
		}
	}()

	for i := 0; i < *repeat; i++ {
		if err := call(client, http.MethodPut, sessionURL+"/input", map[string]string{"value": *query}, nil); err != nil {
			log.Fatalf("failed to set input: %v", err)
		}
		var kr struct {
			Submitted bool `json:"submitted"`
		}
		if err := call(client, http.MethodPost, sessionURL+"/keys", map[string]any{"key": assistant.KeyEnter}, &kr); err != nil {
			log.Fatalf("failed to press enter: %v", err)
		}
		if !kr.Submitted {
			log.Fatal("query was not submitted")
		}

		st = waitForSubmission(client, sessionURL, i+1)
		out := st.LastSubmission
		log.Printf("Submission %d: decision=%s matched=%t objectIDs=%v", i+1, out.Decision, out.SearchMatched, out.ObjectIDs)
	}

	for _, m := range st.Messages {
		log.Printf("[%s] %s (%d parts)", m.Role, m.Text(), len(m.Parts))
	}
}

// checkHealth queries the gRPC health service.
func checkHealth(addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: grpcapi.ServiceName})
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}
	log.Printf("Health: %s", resp.GetStatus())
}

// waitForSubmission polls until the session holds n completed exchanges.
func waitForSubmission(client *http.Client, sessionURL string, n int) assistant.State {
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		var st assistant.State
		if err := call(client, http.MethodGet, sessionURL, nil, &st); err != nil {
			log.Fatalf("failed to get state: %v", err)
		}
		if st.ChatStatus == "error" {
			log.Fatalf("agent request failed: %s", st.ChatError)
		}
		if st.LastSubmission != nil && len(st.Messages) >= 2*n && st.ChatStatus == "ready" {
			return st
		}
		time.Sleep(200 * time.Millisecond)
	}
	log.Fatal("timed out waiting for the answer")
	return assistant.State{}
}

func call(client *http.Client, method, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
