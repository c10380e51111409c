// Command dispute_smoke drives one dispute through a running API: it mints
// development tokens, opens a dispute, casts votes and polls the status until
// the dispute resolves. The API must run outside production so the dev token
// endpoint is registered. With DISPUTE_STORE=memory, set DISPUTE_MEMORY_SEED
// to scripts/dispute_smoke/seed.yaml so the chore and members exist.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/chore-dispute-api/internal/models"
	"github.com/noah-isme/chore-dispute-api/pkg/disputeclient"
)

type step struct {
	Name     string
	Duration time.Duration
	Err      error
	Detail   string
}

func main() {
	var (
		base     string
		choreID  string
		disputer string
		voters   string
		choice   string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL including prefix")
	flag.StringVar(&choreID, "chore", "", "ID of a completed chore to dispute")
	flag.StringVar(&disputer, "disputer", "", "Email of the disputing home member")
	flag.StringVar(&voters, "voters", "", "Comma separated voter emails")
	flag.StringVar(&choice, "choice", string(models.VoteChoiceApprove), "Choice every voter casts")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if choreID == "" || disputer == "" {
		log.Fatalf("-chore and -disputer are required")
	}

	ctx := context.Background()
	httpClient := &http.Client{Timeout: timeout}
	var steps []step
	record := func(name string, start time.Time, err error, detail string) bool {
		steps = append(steps, step{Name: name, Duration: time.Since(start), Err: err, Detail: detail})
		return err == nil
	}

	start := time.Now()
	token, err := devToken(ctx, httpClient, base, disputer)
	if !record("issue disputer token", start, err, disputer) {
		finish(steps)
	}
	owner := disputeclient.New(base, disputeclient.WithToken(token), disputeclient.WithHTTPClient(httpClient))

	start = time.Now()
	dispute, err := owner.CreateDispute(ctx, choreID, "smoke test dispute", nil)
	if !record("create dispute", start, err, "") {
		finish(steps)
	}

	for _, voter := range splitEmails(voters) {
		start = time.Now()
		voterToken, err := devToken(ctx, httpClient, base, voter)
		if !record("issue voter token", start, err, voter) {
			continue
		}
		client := disputeclient.New(base, disputeclient.WithToken(voterToken), disputeclient.WithHTTPClient(httpClient))
		start = time.Now()
		snap, err := client.Vote(ctx, dispute.ID, models.VoteChoice(choice))
		record("vote", start, err, fmt.Sprintf("%s approve=%d reject=%d", voter, snap.Status.ApproveVotes, snap.Status.RejectVotes))
	}

	start = time.Now()
	snap, err := owner.Refresh(ctx, dispute.ID)
	record("refresh status", start, err, fmt.Sprintf("status=%s resolved=%t required=%d", snap.Status.Status, snap.Status.Resolved, snap.Status.RequiredVotes))

	finish(steps)
}

func devToken(ctx context.Context, client *http.Client, base, email string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/auth/dev-token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dev token for %s: status %d", email, resp.StatusCode)
	}
	var body struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Data.AccessToken, nil
}

func splitEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func finish(steps []step) {
	fmt.Println("Dispute Smoke Report")
	fmt.Println("====================")
	failed := 0
	for _, s := range steps {
		status := "OK"
		if s.Err != nil {
			status = "ERROR"
			failed++
		}
		fmt.Printf("[%s] %s (%s) %s\n", status, s.Name, s.Duration, s.Detail)
		if s.Err != nil {
			fmt.Printf("  Error: %v\n", s.Err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
	os.Exit(0)
}
