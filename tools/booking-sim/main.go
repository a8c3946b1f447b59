// booking-sim drives the booking API end to end against a dev instance
// running without JWT_SECRET (header auth). Typical flow:
//
//	booking-sim -action book-expert -user pat-1 -nutritionist <id>
//	booking-sim -action confirm -user pat-1 -appointment <id>
//	booking-sim -action start -user <nutritionist-id> -role nutritionist -appointment <id>
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/runtime"
)

func main() {
	var (
		baseURL      = flag.String("base-url", runtime.Getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		action       = flag.String("action", "book-slot", "book-slot | book-expert | confirm | start | end | cancel | availability")
		user         = flag.String("user", runtime.Getenv("USER_ID", "pat-1"), "acting user id")
		role         = flag.String("role", "patient", "patient | nutritionist")
		slotID       = flag.String("slot", "", "slot id for book-slot")
		nutritionist = flag.String("nutritionist", "", "nutritionist id")
		appointment  = flag.String("appointment", "", "appointment id")
		day          = flag.String("day", time.Now().UTC().Add(48*time.Hour).Format("2006-01-02"), "day for book-expert / availability")
		mode         = flag.String("mode", "virtual", "virtual | in_person")
		reason       = flag.String("reason", "", "cancellation reason")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	start := *day + "T10:00:00Z"
	end := *day + "T11:00:00Z"

	var (
		method = http.MethodPost
		path   string
		body   map[string]any
	)
	switch *action {
	case "book-slot":
		if *slotID == "" {
			fatal("-slot is required")
		}
		path = "/api/v1/appointments"
		body = map[string]any{"slot_id": *slotID}
	case "book-expert":
		if *nutritionist == "" {
			fatal("-nutritionist is required")
		}
		path = "/api/v1/appointments"
		body = map[string]any{
			"nutritionist_id": *nutritionist,
			"day":             *day,
			"start_time":      start,
			"end_time":        end,
			"mode":            *mode,
		}
	case "confirm":
		path = "/api/v1/appointments/confirm-payment"
		body = map[string]any{"appointment_id": *appointment}
	case "start":
		path = "/api/v1/sessions/start"
		body = map[string]any{"appointment_id": *appointment}
	case "end":
		path = "/api/v1/sessions/end"
		body = map[string]any{"appointment_id": *appointment}
	case "cancel":
		path = "/api/v1/appointments/cancel"
		body = map[string]any{"appointment_id": *appointment, "reason": *reason}
	case "availability":
		if *nutritionist == "" {
			fatal("-nutritionist is required")
		}
		method = http.MethodGet
		path = "/api/v1/public/availability?nutritionist_id=" + *nutritionist + "&day=" + *day
	default:
		fatal("unknown action: " + *action)
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatal(err.Error())
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, base+path, reqBody)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", *user)
	req.Header.Set("X-Role", *role)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("status=%d\n%s\n", resp.StatusCode, strings.TrimSpace(string(out)))
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
