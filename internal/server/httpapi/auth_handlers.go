package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/server/services"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	Otp             string `json:"otp"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type verifiedResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkPassword(req.Password, req.ConfirmPassword); err != nil {
		a.writeError(w, r, err)
		return
	}

	msg, err := a.auth.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkCode(req.Otp); err != nil {
		a.writeError(w, r, err)
		return
	}

	ok, err := a.auth.VerifyEmail(r.Context(), req.Email, req.Otp)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifiedResponse{Verified: ok, Message: "Email verified successfully. You can now log in."})
}

func (a *API) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}

	if _, err := a.auth.ResendVerificationCode(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "A new verification code has been sent to your email.")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Password == "" {
		a.writeError(w, r, invalid("password is required"))
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, a.auth.Logout(r.Context()))
}

// handleRefresh accepts the token in the body or as a bearer header.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		token = req.Token
	}
	if token == "" {
		a.writeError(w, r, invalid("token is required"))
		return
	}

	res, err := a.auth.RefreshToken(r.Context(), token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}

	if _, err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, services.MsgResetRequested)
}

func (a *API) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkCode(req.Otp); err != nil {
		a.writeError(w, r, err)
		return
	}

	ok, err := a.auth.VerifyOtp(r.Context(), req.Email, req.Otp)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifiedResponse{Verified: ok, Message: "Code verified. You can now reset your password."})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkEmail(req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkCode(req.Otp); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		a.writeError(w, r, err)
		return
	}

	if _, err := a.auth.ResetPassword(r.Context(), req.Email, req.Otp, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset successfully.")
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	v, err := a.auth.Profile(r.Context(), claims.Subject)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
