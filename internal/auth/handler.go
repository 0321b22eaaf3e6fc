package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/autoflowlabs/consultancy-crm/internal/http/httputil"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// CustomerRegistrar creates (or links) the CRM customer behind a portal signup.
type CustomerRegistrar interface {
	RegisterPortalCustomer(ctx context.Context, name, email, phone string) (string, error)
}

// Handler serves login, signup and session introspection.
type Handler struct {
	accounts  AccountRepository
	tokens    *Tokens
	registrar CustomerRegistrar
	logger    *logging.Logger
}

func NewHandler(accounts AccountRepository, tokens *Tokens, registrar CustomerRegistrar, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{accounts: accounts, tokens: tokens, registrar: registrar, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			h.logger.Error("failed to load account", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		httputil.WriteError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	if !CheckPassword(account.PasswordHash, req.Password) {
		h.logger.Warn("failed login", "email", account.Email)
		httputil.WriteError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}

	h.writeToken(w, http.StatusOK, account)
}

// Register handles POST /api/auth/register and creates a portal customer.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if req.Name == "" || req.Email == "" {
		httputil.WriteError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.accounts.FindByEmail(r.Context(), req.Email); err == nil {
		httputil.WriteError(w, http.StatusConflict, ErrAccountExists.Error())
		return
	}

	customerID, err := h.registrar.RegisterPortalCustomer(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		h.logger.Warn("portal customer registration rejected", "email", req.Email, "error", err)
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account := &Account{Email: req.Email, PasswordHash: hash, Role: RoleCustomer, CustomerID: customerID}
	if err := h.accounts.Create(r.Context(), account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to create account", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("portal account registered", "account_id", account.ID, "customer_id", customerID)
	h.writeToken(w, http.StatusCreated, account)
}

// Me handles GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	account, err := h.accounts.Get(r.Context(), principal.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httputil.WriteError(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.logger.Error("failed to load account", "account_id", principal.AccountID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) writeToken(w http.ResponseWriter, status int, account *Account) {
	token, expires, err := h.tokens.Issue(account)
	if err != nil {
		h.logger.Error("failed to issue token", "account_id", account.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, status, TokenResponse{Token: token, ExpiresAt: expires, Account: account})
}
