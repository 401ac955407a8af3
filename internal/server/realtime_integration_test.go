package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
)

func TestGameStreamEmitsTicketEvents(t *testing.T) {
	f := newAPIFixture(t)
	gameID := f.createGame(time.Hour)
	otherGameID := f.createGame(time.Hour)

	streamRequest, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/games/"+itoa(gameID)+"/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamResp, err := f.httpClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	if contentType := streamResp.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected stream content type %q", contentType)
	}

	if status, _ := f.buy(testPlayerB, otherGameID, 11); status != http.StatusCreated {
		t.Fatalf("buy in other game: unexpected status %d", status)
	}
	if status, _ := f.buy(testPlayerA, gameID, 42); status != http.StatusCreated {
		t.Fatalf("buy: unexpected status %d", status)
	}

	streamReader := bufio.NewReader(streamResp.Body)
	currentEventType := ""
	deadline := time.After(5 * time.Second)
	type readResult struct {
		line string
		err  error
	}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := streamReader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for realtime event")
		case res := <-resultCh:
			if res.err != nil {
				t.Fatalf("failed to read stream: %v", res.err)
			}
			line := strings.TrimSpace(res.line)
			if strings.HasPrefix(line, "event:") {
				currentEventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEventType != lottery.EventTicketBuy {
				continue
			}
			var event gameroot.Event
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if event.Topic != lottery.GameTopic(gameID) {
				t.Fatalf("received event from topic %q", event.Topic)
			}
			if buyer, _ := event.Args["buyer"].(string); buyer != testPlayerA.Hex() {
				t.Fatalf("unexpected buyer %v", event.Args["buyer"])
			}
			if number, _ := event.Args["lucky_number"].(float64); number != 42 {
				t.Fatalf("unexpected lucky number %v", event.Args["lucky_number"])
			}
			return
		}
	}
}
