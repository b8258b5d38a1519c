// lockstorm fires N concurrent sessions at one note's lock endpoint and
// reports how the server serialized them. Exactly one session should win
// each round; the rest should be denied with the winner's identity.
//
//	go run ./tools/scripts/lockstorm -note 1 -sessions 25
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

func main() {
	server := flag.String("server", envOr("NOTELOCK_SERVER", "http://localhost:8080"), "notelockd base URL")
	note := flag.String("note", "1", "note id to contend for")
	sessions := flag.Int("sessions", 25, "number of concurrent sessions")
	flag.Parse()

	base := strings.TrimRight(*server, "/")
	url := fmt.Sprintf("%s/api/v1/notes/%s/lock", base, *note)
	client := &http.Client{Timeout: 10 * time.Second}

	type outcome struct {
		session string
		status  int
		holder  string
	}
	results := make([]outcome, *sessions)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < *sessions; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			session := uuid.NewString()
			<-start
			body, _ := json.Marshal(map[string]string{"holder": session})
			resp, err := client.Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				log.Printf("session %s: %v", session, err)
				return
			}
			defer func() {
				_ = resp.Body.Close()
			}()
			var reply struct {
				Holder string `json:"holder"`
				Lock   struct {
					Holder string `json:"holder"`
				} `json:"lock"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&reply)
			holder := reply.Holder
			if holder == "" {
				holder = reply.Lock.Holder
			}
			results[slot] = outcome{session: session, status: resp.StatusCode, holder: holder}
		}(i)
	}
	close(start)
	wg.Wait()

	var granted, denied, other int
	winners := map[string]bool{}
	for _, r := range results {
		switch r.status {
		case http.StatusOK:
			granted++
			winners[r.holder] = true
		case http.StatusConflict:
			denied++
		default:
			other++
		}
	}

	log.Printf("note=%s sessions=%d granted=%d denied=%d other=%d", *note, *sessions, granted, denied, other)
	if granted == 0 && denied == *sessions {
		log.Fatalf("note is already locked by an earlier session; wait for the TTL and rerun")
	}
	if granted != 1 || len(winners) != 1 {
		log.Fatalf("expected exactly one winner, got %d (%d distinct holders)", granted, len(winners))
	}
	for winner := range winners {
		log.Printf("winner=%s", winner)
	}
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
