package httpx

import (
	"net/http"

	"github.com/target/members-console/internal/domain/model"
	apperrors "github.com/target/members-console/internal/errors"
)

type registrationView struct {
	Registration *model.Registration
	Input        model.RegistrationRequest
	Errors       map[string]string
}

// RegistrationPage renders the registration completion form. A principal
// who already completed it is sent home.
// GET /auth/register.
func (h *MemberHandlers) RegistrationPage(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Svc.Registration(r.Context())
	if err != nil {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}
	if reg.Complete {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, pageRegister, "Complete registration", registrationView{
		Registration: reg,
		Input:        model.RegistrationRequest{FirstName: reg.FirstName, LastName: reg.LastName},
	})
}

// CompleteRegistration submits the registration form.
// POST /auth/register.
func (h *MemberHandlers) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	req := model.RegistrationRequest{
		FirstName:   r.PostFormValue("firstName"),
		LastName:    r.PostFormValue("lastName"),
		PhoneNumber: r.PostFormValue("phoneNumber"),
	}
	err := h.Svc.CompleteRegistration(r.Context(), req)
	if err == nil {
		SetFlash(w, FlashSuccess, "Registration completed successfully")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if !isValidation(err) {
		renderPageError(w, r, h.T, h.logger(), err)
		return
	}

	reg, regErr := h.Svc.Registration(r.Context())
	if regErr != nil {
		reg = &model.Registration{}
	}
	view := registrationView{Registration: reg, Input: req, Errors: fieldErrors(err)}
	data := newPageData(w, r, "Complete registration", view)
	if view.Errors == nil {
		data.Flash = &Flash{Kind: FlashError, Message: userMessage(err)}
	}
	if renderErr := h.T.Render(w, http.StatusUnprocessableEntity, pageRegister, data); renderErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func isValidation(err error) bool {
	return apperrors.IsValidation(err)
}
