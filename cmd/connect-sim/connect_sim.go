// Command connect-sim runs a full connect attempt in process: in-memory
// windows, a scripted provider SDK, a local completion backend. It exercises
// both relay-popup and direct-embed modes and prints the outcomes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	waconnect "github.com/instahelp/waconnect"
	"github.com/instahelp/waconnect/browser/inproc"
	"github.com/instahelp/waconnect/exchange"
	"github.com/instahelp/waconnect/fbsdk"
	"github.com/instahelp/waconnect/internal"
	"github.com/instahelp/waconnect/origin"
	"github.com/instahelp/waconnect/relay"
)

const (
	appOrigin = "https://app.instahelp.io"
	relayBase = "https://relay.instahelp.io"
	fbOrigin  = "https://www.facebook.com"
)

var (
	mode     = flag.String("mode", "relay", "Connect mode to simulate (relay, direct)")
	cancel   = flag.Bool("cancel", false, "Simulate the user cancelling the provider dialog")
	logLevel = flag.String("log-level", "debug", "Logging level")
)

// simSDK stands in for the provider SDK: login resolves with a canned code
// after a short delay, as if the user had clicked through the dialog.
type simSDK struct {
	code  string
	delay time.Duration
}

func (s *simSDK) Init(appID, apiVersion string) error { return nil }

func (s *simSDK) Login(opts fbsdk.LoginOptions, cb func(fbsdk.LoginResult)) {
	go func() {
		time.Sleep(s.delay)
		cb(fbsdk.LoginResult{Code: s.code})
	}()
}

func main() {
	flag.Parse()
	level, _ := internal.ParseLogLevel(*logLevel)
	slog.SetDefault(internal.NewLogger(os.Stdout, level))

	backendURL, stopBackend := startBackend()
	defer stopBackend()

	parent, err := inproc.NewWindow(appOrigin + "/settings/channels")
	if err != nil {
		log.Fatalf("Failed to create window: %v\n", err)
	}

	opts := waconnect.Options{
		AppID:      "sim-app",
		ConfigID:   "sim-config",
		APIVersion: "v23.0",
		Window:     parent,
		Exchanger: exchange.NewClient(exchange.Opts{
			BaseURL: backendURL,
			Token:   "sim-token",
		}),
		Timeout:      10 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}

	switch *mode {
	case "relay":
		opts.RelayBases = []string{relayBase}
		opts.Opener = inproc.NewOpener(parent, bootRelayPage)
	case "direct":
		opts.Loader = fbsdk.NewLoader(fbsdk.NewStaticHost(&simSDK{code: "sim-code", delay: 200 * time.Millisecond}))
		go driveProvider(parent)
	default:
		log.Fatalf("Unknown mode %q\n", *mode)
	}

	res, err := waconnect.NewConnector(opts).Connect(context.Background())
	if err != nil {
		slog.Error("connect attempt failed", "result", res.String(), "error", err)
		os.Exit(1)
	}
	fmt.Printf("outcome: %s\n", res)
}

// bootRelayPage stands in for the browser loading the relay page into the
// popup: it starts the bridge and scripts the provider against it.
func bootRelayPage(child *inproc.Window) {
	sdk := &simSDK{code: "sim-code", delay: 200 * time.Millisecond}
	loader := fbsdk.NewLoader(fbsdk.NewStaticHost(sdk))
	bridge := relay.NewBridge(child, loader, "sim-app", "sim-config", "v23.0")
	go bridge.Run(context.Background())
	go driveProvider(child)
}

// driveProvider emits the provider's embedded-signup event into the window
// the dialog runs in.
func driveProvider(win *inproc.Window) {
	time.Sleep(400 * time.Millisecond)
	event := `{"type":"WA_EMBEDDED_SIGNUP","event":"FINISH","data":{"waba_id":"sim-waba","phone_number_id":"sim-phone"}}`
	if *cancel {
		event = `{"type":"WA_EMBEDDED_SIGNUP","event":"CANCEL","data":{}}`
	}
	win.Deliver(origin.MustParse(fbOrigin), []byte(event))
}

// startBackend serves a minimal completion endpoint on a loopback port.
func startBackend() (url string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("Failed to listen: %v\n", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/whatsapp/embedded-signup/complete", func(w http.ResponseWriter, r *http.Request) {
		var req exchange.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("backend completing connection", "waba_id", req.WABAID, "phone_number_id", req.PhoneNumberID)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	return "http://" + ln.Addr().String(), func() { srv.Close() }
}
