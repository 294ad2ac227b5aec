package http

import (
	"net/http"

	"spendwise/internal/core"
	"spendwise/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resUser, "registering user")
		return
	}
	sess, err := s.svc.Auth.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, resUser, "registering user")
		return
	}
	Created(sess).Write(w)
}

// handleLogin authenticates the caller. The recurring engine runs for the
// user before the token is returned.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in services.LoginInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resUser, "logging in")
		return
	}
	if in.Email == "" || in.Password == "" {
		BadRequestError("Please provide email and password").Write(w)
		return
	}
	sess, err := s.svc.Auth.Login(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, resUser, "logging in")
		return
	}
	OK(sess).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Auth.Me(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err, resUser, "fetching user profile")
		return
	}
	OK(u).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch services.ProfilePatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err, resUser, "updating profile")
		return
	}
	u, err := s.svc.Auth.UpdateProfile(r.Context(), userID(r), patch)
	if err != nil {
		s.fail(w, r, err, resUser, "updating profile")
		return
	}
	OK(u).Write(w)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in services.PasswordChange
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resUser, "changing password")
		return
	}
	if in.CurrentPassword == "" || in.NewPassword == "" {
		BadRequestError("Both current and new password are required").Write(w)
		return
	}
	if err := core.ValidatePassword(in.NewPassword); err != nil {
		BadRequestError("New password must be at least 6 characters").Write(w)
		return
	}
	if err := s.svc.Auth.ChangePassword(r.Context(), userID(r), in); err != nil {
		s.fail(w, r, err, resUser, "changing password")
		return
	}
	NewResponse().Message("Password changed successfully").Write(w)
}
