package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// smoke probes a running instance. Registration always runs; the full
// login/validate/logout cycle needs an existing account (-email/-password)
// because temporary passwords only travel by email.
func main() {
	var (
		baseURL  = flag.String("url", envOr("STAFFAUTH_SMOKE_URL", "http://localhost:8080"), "HTTP base URL")
		grpcAddr = flag.String("grpc", envOr("STAFFAUTH_SMOKE_GRPC", "localhost:9090"), "gRPC address")
		domain   = flag.String("domain", envOr("STAFFAUTH_EMAIL_ALLOWED_DOMAIN", "@selco.com.br"), "Allowed registration domain")
		email    = flag.String("email", os.Getenv("STAFFAUTH_SMOKE_EMAIL"), "Existing account email for the login cycle")
		password = flag.String("password", os.Getenv("STAFFAUTH_SMOKE_PASSWORD"), "Existing account password")
	)
	flag.Parse()
	log.SetFlags(0)

	c := &client{base: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: 5 * time.Second}}

	c.expect("GET", "/auth/health", nil, nil, http.StatusOK)
	c.expect("GET", "/readyz", nil, nil, http.StatusOK)

	fresh := fmt.Sprintf("smoke-%s%s", uuid.NewString()[:8], *domain)
	reg := map[string]string{
		"national_id": "12345678909",
		"name":        "Smoke Test",
		"email":       fresh,
		"department":  "Platform",
		"job_title":   "Probe",
	}
	created := c.expect("POST", "/auth/register", reg, nil, http.StatusCreated)
	c.expect("POST", "/auth/register", reg, nil, http.StatusConflict)
	c.expect("POST", "/auth/login", map[string]string{"email": fresh, "password": "not-the-password"}, nil, http.StatusUnauthorized)
	c.expect("POST", "/auth/validate", nil, map[string]string{"Authorization": "Bearer not.a.token"}, http.StatusUnauthorized)

	if *email != "" && *password != "" {
		login := c.expect("POST", "/auth/login", map[string]string{"email": *email, "password": *password}, nil, http.StatusOK)
		token, _ := login["access_token"].(string)
		if token == "" {
			log.Fatalf("login returned no access token")
		}
		auth := map[string]string{"Authorization": "Bearer " + token}
		c.expect("POST", "/auth/validate", nil, auth, http.StatusOK)
		c.expect("GET", "/auth/me", nil, auth, http.StatusOK)
		c.expect("POST", "/auth/logout", map[string]string{"token": token}, nil, http.StatusOK)
		c.expect("POST", "/auth/validate", nil, auth, http.StatusUnauthorized)
	}

	if err := checkGRPC(*grpcAddr); err != nil {
		log.Fatalf("grpc health: %v", err)
	}

	fmt.Printf("staffauth smoke test passed: registered=%s account=%v\n", fresh, created["account_id"])
}

type client struct {
	base string
	http *http.Client
}

func (c *client) expect(method, path string, body any, headers map[string]string, want int) map[string]any {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, raw)
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func checkGRPC(addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "staffauth"})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
