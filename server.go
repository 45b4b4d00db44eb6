package lnurlpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	payPath     = "/pay"
	invoicePath = "/invoice"

	// DefaultOfferTTL is how long an offer's callback stays valid.
	DefaultOfferTTL = 10 * time.Minute

	// DefaultInvoiceBurst is the number of invoices a client may request
	// at once when invoice requests are rate limited.
	DefaultInvoiceBurst = 5
)

// InvoiceIssuer creates invoices for the server.
type InvoiceIssuer interface {
	// AddInvoice creates an invoice for amt committing to
	// descriptionHash and returns its payment request.
	AddInvoice(ctx context.Context, amt lnwire.MilliSatoshi,
		descriptionHash lntypes.Hash) (string, error)
}

// LndInvoicer issues invoices with an lnd node.
type LndInvoicer struct {
	client lndclient.LightningClient
	memo   string
}

// A compile time check to ensure LndInvoicer implements InvoiceIssuer.
var _ InvoiceIssuer = (*LndInvoicer)(nil)

// NewLndInvoicer creates an issuer backed by client.
func NewLndInvoicer(client lndclient.LightningClient,
	memo string) *LndInvoicer {

	return &LndInvoicer{client: client, memo: memo}
}

// AddInvoice adds an invoice to the lnd node.
func (l *LndInvoicer) AddInvoice(ctx context.Context, amt lnwire.MilliSatoshi,
	descriptionHash lntypes.Hash) (string, error) {

	_, pr, err := l.client.AddInvoice(ctx, &invoicesrpc.AddInvoiceData{
		Memo:            l.memo,
		Value:           amt,
		DescriptionHash: descriptionHash[:],
	})

	return pr, err
}

// ServerConfig configures the LN SERVICE.
type ServerConfig struct {
	Protocol string
	Host     string
	Port     int

	// Description is the text/plain metadata of every offer.
	Description string

	MinMsatSendable lnwire.MilliSatoshi
	MaxMsatSendable lnwire.MilliSatoshi

	// CommentAllowed is the comment length offered to wallets.
	CommentAllowed int

	// SuccessMessage, if set, is returned as a message success action.
	SuccessMessage string

	// OfferTTL is how long a callback id stays valid.
	OfferTTL time.Duration

	// InvoiceRate limits the invoice requests of a single client ip, in
	// requests per minute. Zero disables the limit.
	InvoiceRate int

	// InvoiceBurst is the burst allowed on top of InvoiceRate.
	InvoiceBurst int
}

// Server is a minimal LN SERVICE for LNURL-pay.
type Server struct {
	cfg    *ServerConfig
	issuer InvoiceIssuer
	mux    *http.ServeMux

	paymentMetadata map[string]*metadata
	metadataMu      sync.Mutex

	limiters   map[string]*clientLimiter
	limitersMu sync.Mutex

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

type metadata struct {
	data      string
	createdAt time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewServer creates a server that issues invoices through issuer.
func NewServer(cfg *ServerConfig, issuer InvoiceIssuer) *Server {
	if cfg.OfferTTL == 0 {
		cfg.OfferTTL = DefaultOfferTTL
	}
	if cfg.InvoiceBurst <= 0 {
		cfg.InvoiceBurst = DefaultInvoiceBurst
	}

	s := &Server{
		cfg:             cfg,
		issuer:          issuer,
		mux:             http.NewServeMux(),
		paymentMetadata: make(map[string]*metadata),
		limiters:        make(map[string]*clientLimiter),
		quit:            make(chan struct{}),
	}

	s.mux.HandleFunc(payPath, s.pay)
	s.mux.HandleFunc(invoicePath, s.invoice)

	return s
}

// Handler returns the http handler serving the LNURL-pay endpoints.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts expiring stale callback ids.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.expireMetadata()
}

// Stop stops the server's background work. It is safe to call more than
// once.
func (s *Server) Stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
}

// Run prints the server's LNURL and serves until the listener fails.
func (s *Server) Run() error {
	if err := s.printHello(); err != nil {
		return err
	}

	s.Start()
	defer s.Stop()

	return http.ListenAndServe(fmt.Sprintf(":%d", s.cfg.Port), s.mux)
}

// PayURL returns the url of the pay endpoint.
func (s *Server) PayURL() string {
	return fmt.Sprintf(
		"%s://%s:%d%s", s.cfg.Protocol, s.cfg.Host, s.cfg.Port,
		payPath,
	)
}

func (s *Server) printHello() error {
	payCode := s.PayURL()

	payLNURL, err := EncodeURL(payCode)
	if err != nil {
		return err
	}

	qr, err := qrcode.New(payLNURL, qrcode.Medium)
	if err != nil {
		return err
	}

	fmt.Printf(
		""+
			"=======================================\n"+
			"Welcome to LNDURL!\n"+
			"Your static LNURL-pay code is: \n"+
			"- %s\n"+
			"- lightning:%s\n"+
			"- %s\n"+
			"%s"+
			"=======================================\n",
		payLNURL, payLNURL, strings.Replace(
			payCode, s.cfg.Protocol, payScheme, 1,
		), qr.ToSmallString(false),
	)

	return nil
}

func (s *Server) expireMetadata() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.OfferTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.pruneMetadata(now)
			s.pruneLimiters(now)

		case <-s.quit:
			return
		}
	}
}

// pruneMetadata removes callback ids older than the offer TTL.
func (s *Server) pruneMetadata(now time.Time) {
	s.metadataMu.Lock()
	defer s.metadataMu.Unlock()

	for id, meta := range s.paymentMetadata {
		if now.Sub(meta.createdAt) > s.cfg.OfferTTL {
			delete(s.paymentMetadata, id)
		}
	}
}

// pruneLimiters forgets clients that have been idle for longer than the
// offer TTL.
func (s *Server) pruneLimiters(now time.Time) {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	for host, c := range s.limiters {
		if now.Sub(c.lastSeen) > s.cfg.OfferTTL {
			delete(s.limiters, host)
		}
	}
}

// allowInvoice reports whether the client behind r may request another
// invoice.
func (s *Server) allowInvoice(r *http.Request, now time.Time) bool {
	if s.cfg.InvoiceRate <= 0 {
		return true
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	c, ok := s.limiters[host]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(
				rate.Limit(float64(s.cfg.InvoiceRate)/60),
				s.cfg.InvoiceBurst,
			),
		}
		s.limiters[host] = c
	}
	c.lastSeen = now

	return c.limiter.AllowN(now, 1)
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	data, err := json.Marshal([][2]string{
		{MetadataPlainText, s.cfg.Description},
		{"text/identifier", id},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metadataMu.Lock()
	s.paymentMetadata[id] = &metadata{
		data:      string(data),
		createdAt: time.Now(),
	}
	s.metadataMu.Unlock()

	getInvoice := fmt.Sprintf(
		"%s://%s:%d%s?id=%s", s.cfg.Protocol, s.cfg.Host,
		s.cfg.Port, invoicePath, id,
	)

	resp := &PayResponse{
		Callback:    getInvoice,
		MinSendable: int64(s.cfg.MinMsatSendable),
		MaxSendable: int64(s.cfg.MaxMsatSendable),
		Metadata:    string(data),
		Tag:         TypePayRequest,
	}
	if s.cfg.CommentAllowed > 0 {
		resp.CommentAllowed = s.cfg.CommentAllowed
	}

	writeJSON(w, resp)
}

func (s *Server) invoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !s.allowInvoice(r, time.Now()) {
		log.Warnf("Rate limiting invoice requests from %v", r.RemoteAddr)
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.Form.Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "expected 'id' field")
		return
	}

	amt := r.Form.Get("amount")
	if amt == "" {
		writeError(w, http.StatusBadRequest, "expected 'amount' field")
		return
	}

	milliSats, err := strconv.ParseUint(amt, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected 'amount' field")
		return
	}

	value := lnwire.MilliSatoshi(milliSats)
	if value < s.cfg.MinMsatSendable || value > s.cfg.MaxMsatSendable {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("amount "+
			"must be between %d and %d", s.cfg.MinMsatSendable,
			s.cfg.MaxMsatSendable))
		return
	}

	comment := r.Form.Get("comment")
	if utf8.RuneCountInString(comment) > s.cfg.CommentAllowed {
		writeError(w, http.StatusBadRequest, "comment too long")
		return
	}

	s.metadataMu.Lock()
	meta, ok := s.paymentMetadata[id]
	if !ok {
		s.metadataMu.Unlock()
		writeError(w, http.StatusBadRequest, "unknown or expired id")
		return
	}
	delete(s.paymentMetadata, id)
	s.metadataMu.Unlock()

	if comment != "" {
		log.Infof("Invoice %v requested with comment: %q", id, comment)
	}

	pr, err := s.issuer.AddInvoice(ctx, value, CommitmentHash(meta.data))
	if err != nil {
		log.Errorf("Could not add invoice: %v", err)
		writeError(w, http.StatusInternalServerError, "invoice error")
		return
	}

	resp := &InvoiceResponse{
		PayRequest: pr,
		Routes:     []string{},
	}
	if s.cfg.SuccessMessage != "" {
		resp.SuccessAction, err = json.Marshal(struct {
			Tag string `json:"tag"`
			MessageAction
		}{
			Tag:           ActionTagMessage,
			MessageAction: MessageAction{Message: s.cfg.SuccessMessage},
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Could not write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Error{
		Status: StatusError,
		Reason: reason,
	})
}
