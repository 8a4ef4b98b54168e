package booking

// Selectors for the reservation site. The layout is a legacy ASP.NET page
// with stable generated ids; if one of these disappears the site changed
// and the run cannot proceed.
const (
	selLoginCaptcha  = `img[src="mcapcha.aspx"]`
	selUsername      = "#txtUserName"
	selPassword      = "#txtPassword"
	selUserType      = "#ddlUserType"
	selOrganization  = "#ddlCompName"
	selCaptchaAnswer = "#txtCapcha"
	selLoginButton   = "#btnLogin"
	selLoginMessage  = "#lblMsg"

	selMenuLinks = "ul.list-group a.list-group-item"
	// The booking entry sits at a fixed position in the member menu.
	bookingMenuIndex = 5

	selDateInput    = "#MainContent_txtBookingDate"
	selEnabledDays  = ".datepicker-days td.day:not(.disabled)"
	selGames        = "#MainContent_ddlGames"
	selGameCategory = "#MainContent_ddlGameCategory"
	selSearch       = "#MainContent_btnSearch"

	selConfirmCaptchaImage = "#MainContent_imgCaptchaImage"
	selConfirmAnswer       = "#MainContent_txtCpCode"
	selSave                = "#MainContent_btnSave"
	selErrorModal          = "#divErrorModal"

	selTermsCheckbox = "#chkTermCondition"
	selTermsConfirm  = "button.btn.btn-success"
)

func courtSelector(slot string) string {
	return "#MainContent_grdGameSlot_ddlCourtTable_" + slot
}

func editLink(slot string) string {
	return "#MainContent_grdGameSlot_lnkEdit_" + slot
}
