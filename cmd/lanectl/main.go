package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"actionlane/internal/config"
	"actionlane/pkg/actionlink"
	"actionlane/pkg/agreeclient"
	"actionlane/pkg/agreement"
	"actionlane/pkg/allowlist"
	"actionlane/pkg/execclient"
	"actionlane/pkg/payreq"
	"actionlane/pkg/receipt"
	"actionlane/pkg/token"
	"actionlane/pkg/wallet"
)

const usage = `usage:
  lanectl link build --action <transfer|request> --token <code> --to <address> --amount <n> [--memo <text>]
  lanectl action open --url <resolver url>
  lanectl request create --conversation <id> --payee <address> --token <code> --amount <n> [--payer <address>] [--note <text>] --out <file>
  lanectl request pay --request <file> --account <address> --tx-sig <signature>
  lanectl request status --request <file>
  lanectl agreement create --title <text> --party <address> --party <address> --creator <address> [--payer <address>] [--payee <address>] [--amount <n>] [--token <code>] [--deadline <rfc3339>]
  lanectl agreement show --id <id>
  lanectl agreement sign --id <id> --signer <address> [--tx-sig <signature>]
  lanectl agreement settle-link --id <id> --caller <address>
  lanectl agreement attach --id <id> --account <address> --tx-sig <signature>
  lanectl agreement verify --id <id>
  lanectl agreement export --id <id> [--out <file>]`

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	cfg, err := config.Load(os.Getenv("ACTIONLANE_CONFIG"))
	if err != nil {
		fail("load config: " + err.Error())
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}
	app := &app{cfg: cfg, log: log}

	switch os.Args[1] {
	case "link":
		app.runLink(os.Args[2:])
	case "action":
		app.runAction(os.Args[2:])
	case "request":
		app.runRequest(os.Args[2:])
	case "agreement":
		app.runAgreement(os.Args[2:])
	default:
		fail(usage)
	}
}

type app struct {
	cfg config.Config
	log zerolog.Logger
}

func (a *app) policy() allowlist.Policy {
	return allowlist.Policy{
		Scheme:     a.cfg.Allowlist.Scheme,
		HostSuffix: a.cfg.Allowlist.HostSuffix,
		PathPrefix: a.cfg.Allowlist.PathPrefix,
	}
}

func (a *app) builder() *actionlink.Builder {
	return &actionlink.Builder{
		Policy:         a.policy(),
		Catalog:        token.Defaults(),
		ResolverBase:   a.cfg.Links.ResolverBase,
		ProxyBase:      a.cfg.Links.ProxyBase,
		DeeplinkScheme: a.cfg.Links.DeeplinkScheme,
		Cluster:        a.cfg.Links.Cluster,
	}
}

func (a *app) receipts() (receipt.Store, func()) {
	dir := filepath.Join(a.cfg.DataDir, "receipts")
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		fail("open receipt store: " + err.Error())
	}
	return receipt.NewKVStore(db, a.log), func() { _ = db.Close() }
}

func (a *app) runLink(args []string) {
	if len(args) < 1 || args[0] != "build" {
		fail(usage)
	}
	fs := flag.NewFlagSet("link build", flag.ExitOnError)
	action := fs.String("action", "transfer", "transfer or request")
	tok := fs.String("token", "", "token code")
	to := fs.String("to", "", "counterparty address")
	amount := fs.String("amount", "", "amount")
	memo := fs.String("memo", "", "optional memo")
	_ = fs.Parse(args[1:])

	link, err := a.builder().Build(context.Background(), actionlink.Action(*action), *tok, *to, *amount, *memo)
	if err != nil {
		fail(err.Error())
	}
	printJSON(link)
}

func (a *app) runAction(args []string) {
	if len(args) < 1 || args[0] != "open" {
		fail(usage)
	}
	fs := flag.NewFlagSet("action open", flag.ExitOnError)
	rawURL := fs.String("url", "", "resolver url")
	_ = fs.Parse(args[1:])

	if err := a.policy().AssertAllowed(*rawURL); err != nil {
		fail(err.Error())
	}
	printJSON(map[string]string{"deeplink": a.cfg.Links.DeeplinkScheme + *rawURL})
}

// manualRunner records a signature produced in an external wallet instead
// of signing locally; lanectl holds no keys.
type manualRunner struct{ sig string }

func (r manualRunner) Run(ctx context.Context, link actionlink.Link, sess wallet.Session) (execclient.Result, error) {
	if !actionlink.ValidSignature(r.sig) {
		return execclient.Result{}, fmt.Errorf("invalid transaction signature %q", r.sig)
	}
	return execclient.Result{Signatures: []string{r.sig}}, nil
}

func (a *app) payments(runner payreq.Runner) (*payreq.Service, func()) {
	receipts, closeFn := a.receipts()
	return &payreq.Service{
		Links:    a.builder(),
		Receipts: receipts,
		Runner:   runner,
		Log:      a.log,
	}, closeFn
}

func (a *app) runRequest(args []string) {
	if len(args) < 1 {
		fail(usage)
	}
	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("request create", flag.ExitOnError)
		conv := fs.String("conversation", "", "conversation id")
		payee := fs.String("payee", "", "beneficiary address")
		payer := fs.String("payer", "", "optional payer address")
		tok := fs.String("token", "", "token code")
		amount := fs.String("amount", "", "amount")
		note := fs.String("note", "", "optional note")
		out := fs.String("out", "", "file to write the request to")
		_ = fs.Parse(args[1:])

		svc, closeFn := a.payments(nil)
		defer closeFn()
		req, rcpt, err := svc.Create(context.Background(), payreq.CreateParams{
			ConversationID: *conv,
			Payer:          *payer,
			Payee:          *payee,
			Token:          *tok,
			Amount:         *amount,
			Note:           *note,
		})
		if err != nil {
			fail(err.Error())
		}
		if *out != "" {
			b, _ := json.MarshalIndent(req, "", "  ")
			if err := os.WriteFile(*out, b, 0o600); err != nil {
				fail("write request: " + err.Error())
			}
		}
		printJSON(map[string]any{"request": req, "receipt": rcpt})

	case "pay":
		fs := flag.NewFlagSet("request pay", flag.ExitOnError)
		reqPath := fs.String("request", "", "request file")
		account := fs.String("account", a.cfg.Wallet.Account, "payer account")
		txSig := fs.String("tx-sig", "", "signature from the external wallet")
		_ = fs.Parse(args[1:])

		req := readRequest(*reqPath)
		svc, closeFn := a.payments(manualRunner{sig: *txSig})
		defer closeFn()
		rcpt, err := svc.Pay(context.Background(), req, *account, wallet.Session{Account: *account})
		if err != nil {
			fail(err.Error())
		}
		printJSON(rcpt)

	case "status":
		fs := flag.NewFlagSet("request status", flag.ExitOnError)
		reqPath := fs.String("request", "", "request file")
		_ = fs.Parse(args[1:])

		req := readRequest(*reqPath)
		svc, closeFn := a.payments(nil)
		defer closeFn()
		rcpt, err := svc.Receipt(context.Background(), req)
		if err != nil {
			fail(err.Error())
		}
		printJSON(rcpt)

	default:
		fail(usage)
	}
}

func readRequest(path string) payreq.Request {
	if path == "" {
		fail("--request is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		fail("read request: " + err.Error())
	}
	var req payreq.Request
	if err := json.Unmarshal(b, &req); err != nil {
		fail("parse request: " + err.Error())
	}
	return req
}

func (a *app) runAgreement(args []string) {
	if len(args) < 1 {
		fail(usage)
	}
	c := agreeclient.New(a.cfg.Agreements.URL)
	ctx := context.Background()

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("agreement create", flag.ExitOnError)
		title := fs.String("title", "", "agreement title")
		body := fs.String("body", "", "agreement body")
		var parties repeatStringFlag
		fs.Var(&parties, "party", "participant address (exactly two)")
		creator := fs.String("creator", "", "creating participant")
		payer := fs.String("payer", "", "optional payer")
		payee := fs.String("payee", "", "optional payee")
		amount := fs.String("amount", "", "optional amount")
		tok := fs.String("token", "", "optional token code")
		deadline := fs.String("deadline", "", "optional RFC3339 deadline")
		_ = fs.Parse(args[1:])
		if len(parties) != 2 {
			fail("exactly two --party flags are required")
		}
		req := agreeclient.CreateRequest{
			Title:        *title,
			Body:         *body,
			Participants: [2]string{parties[0], parties[1]},
			CreatedBy:    *creator,
			Payer:        *payer,
			Payee:        *payee,
			Amount:       *amount,
			Token:        *tok,
		}
		if *deadline != "" {
			d, err := time.Parse(time.RFC3339, *deadline)
			if err != nil {
				fail("bad deadline: " + err.Error())
			}
			req.Deadline = &d
		}
		view, err := c.Create(ctx, req)
		if err != nil {
			fail(err.Error())
		}
		printJSON(view)

	case "show":
		fs := flag.NewFlagSet("agreement show", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		_ = fs.Parse(args[1:])
		view, err := c.Get(ctx, *id)
		if err != nil {
			fail(err.Error())
		}
		printJSON(view)

	case "sign":
		fs := flag.NewFlagSet("agreement sign", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		signer := fs.String("signer", a.cfg.Wallet.Account, "signing participant")
		txSig := fs.String("tx-sig", "", "wallet signature, empty for off-chain acknowledgement")
		_ = fs.Parse(args[1:])
		view, err := c.Sign(ctx, *id, *signer, *txSig)
		if err != nil {
			fail(err.Error())
		}
		printJSON(view)

	case "settle-link":
		fs := flag.NewFlagSet("agreement settle-link", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		caller := fs.String("caller", a.cfg.Wallet.Account, "participant requesting the link")
		_ = fs.Parse(args[1:])
		view, err := c.Get(ctx, *id)
		if err != nil {
			fail(err.Error())
		}
		link, err := agreement.SettleLink(ctx, a.builder(), view.Agreement, view.Receipt, *caller)
		if err != nil {
			fail(err.Error())
		}
		printJSON(link)

	case "attach":
		fs := flag.NewFlagSet("agreement attach", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		account := fs.String("account", a.cfg.Wallet.Account, "attaching participant")
		txSig := fs.String("tx-sig", "", "settlement transaction signature")
		_ = fs.Parse(args[1:])
		view, err := c.AttachSettlement(ctx, *id, *account, *txSig)
		if err != nil {
			fail(err.Error())
		}
		printJSON(view)

	case "verify":
		fs := flag.NewFlagSet("agreement verify", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		_ = fs.Parse(args[1:])
		vr, err := c.Verify(ctx, *id)
		if err != nil {
			fail(err.Error())
		}
		printJSON(vr)

	case "export":
		fs := flag.NewFlagSet("agreement export", flag.ExitOnError)
		id := fs.String("id", "", "agreement id")
		out := fs.String("out", "", "file to write, stdout when empty")
		_ = fs.Parse(args[1:])
		doc, err := c.Export(ctx, *id)
		if err != nil {
			fail(err.Error())
		}
		if *out == "" {
			fmt.Println(string(doc))
			return
		}
		if err := os.WriteFile(*out, doc, 0o600); err != nil {
			fail("write export: " + err.Error())
		}

	default:
		fail(usage)
	}
}

type repeatStringFlag []string

func (r *repeatStringFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatStringFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	*r = append(*r, v)
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
