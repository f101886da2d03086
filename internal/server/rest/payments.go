package rest

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/artifacts"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type paymentView struct {
	ID            string               `json:"id"`
	AccountID     string               `json:"account_id"`
	Amount        int64                `json:"amount"`
	Type          models.PaymentType   `json:"payment_type"`
	Status        models.PaymentStatus `json:"status"`
	Method        models.PaymentMethod `json:"payment_method,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
	HasProof      bool                 `json:"has_proof"`
	Reference     string               `json:"reference,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	DueDate       *time.Time           `json:"due_date,omitempty"`
	Overdue       bool                 `json:"overdue"`
	CreatedAt     time.Time            `json:"created_at"`
	SubmittedAt   *time.Time           `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

func (h *Handler) paymentView(p *models.Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		AccountID:     p.AccountID,
		Amount:        p.Amount,
		Type:          p.Type,
		Status:        p.Status,
		Method:        p.Method,
		TransactionID: p.TransactionID,
		HasProof:      p.ProofReference != "",
		Reference:     p.Reference,
		Notes:         p.Notes,
		DueDate:       p.DueDate,
		Overdue:       p.Overdue(h.now()),
		CreatedAt:     p.CreatedAt,
		SubmittedAt:   p.SubmittedAt,
		CompletedAt:   p.CompletedAt,
	}
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.payments.List(r.Context(), actorFrom(r), q.Get("account_id"), models.PaymentStatus(q.Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]paymentView, 0, len(list))
	for _, p := range list {
		out = append(out, h.paymentView(p))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handler) handlePaymentDetail(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.paymentView(p))
}

// maxFieldSize bounds the plain text fields of the pay form.
const maxFieldSize = 4 << 10

// handlePay accepts multipart/form-data with payment_method, proof and an
// optional reference field.
func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)

	req, err := h.readPayForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.payments.Submit(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, confirmation(h.paymentView(p)))
}

// readPayForm streams the multipart body. The proof part's declared type is
// checked from its headers before any of its content is read, so a
// disallowed file is refused whatever its length.
func (h *Handler) readPayForm(r *http.Request) (services.SubmitRequest, error) {
	var req services.SubmitRequest

	mr, err := r.MultipartReader()
	if err != nil {
		return req, common.NewValidationError("body", "expected multipart form data")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		if err != nil {
			return req, bodyError(err)
		}

		switch part.FormName() {
		case "payment_method", "reference":
			v, err := readField(part)
			if err != nil {
				return req, err
			}
			if part.FormName() == "reference" {
				req.Reference = v
			} else {
				req.Method = models.PaymentMethod(v)
			}
		case "proof":
			ct := part.Header.Get("Content-Type")
			if _, err := artifacts.CheckType(ct); err != nil {
				return req, err
			}
			data, err := io.ReadAll(io.LimitReader(part, h.maxUpload+1))
			if err != nil {
				return req, bodyError(err)
			}
			if int64(len(data)) > h.maxUpload {
				return req, common.ErrFileTooLarge
			}
			req.Proof = bytes.NewReader(data)
			req.ContentType = ct
			req.Size = int64(len(data))
		}
		_ = part.Close()
	}
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", bodyError(err)
	}
	if len(b) > maxFieldSize {
		return "", common.NewValidationError(part.FormName(), "is too long")
	}
	return strings.TrimSpace(string(b)), nil
}

// bodyError maps a failed body read; hitting the request cap means the proof
// was too large.
func bodyError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
		return common.ErrFileTooLarge
	}
	return common.NewValidationError("body", "malformed multipart form data")
}

type confirmationView struct {
	Payment paymentView `json:"payment"`
	Message string      `json:"message"`
}

func confirmation(p paymentView) confirmationView {
	msg := "payment is awaiting your proof of payment"
	switch p.Status {
	case models.StatusSubmitted:
		msg = "proof received; an administrator will review it shortly"
	case models.StatusCompleted:
		msg = "payment confirmed"
	}
	return confirmationView{Payment: p, Message: msg}
}

func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, confirmation(h.paymentView(p)))
}

func (h *Handler) handleProof(w http.ResponseWriter, r *http.Request) {
	link, err := h.payments.ProofURL(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"url": link})
}

type createPaymentRequest struct {
	AccountID string             `json:"account_id"`
	Amount    int64              `json:"amount"`
	Type      models.PaymentType `json:"payment_type"`
	DueDate   *time.Time         `json:"due_date"`
	Notes     string             `json:"notes"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.payments.Create(r.Context(), actorFrom(r), services.CreatePaymentRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Type:      req.Type,
		DueDate:   req.DueDate,
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, h.paymentView(p))
}

type verifyRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.payments.Verify(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.TransactionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.paymentView(p))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.payments.Reject(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.paymentView(p))
}
