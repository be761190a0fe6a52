package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/services"
)

const contractFormField = "contract"

// stripContract keeps the inline contract copy out of JSON responses; it is
// served only through the download route.
func stripContract(r *models.EventRequest) *models.EventRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.ContractFileData = ""
	return &out
}

func stripContracts(list []*models.EventRequest) []*models.EventRequest {
	out := make([]*models.EventRequest, 0, len(list))
	for _, r := range list {
		out = append(out, stripContract(r))
	}
	return out
}

type reviewBody struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// SubmitRequest takes the first-stage form from guests and members alike.
func SubmitRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in models.RequestSubmission
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		req, err := rs.Submit(c.Request.Context(), in, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(stripContract(req), "Ihre Anfrage wurde erfolgreich übermittelt."))
	}
}

func MyRequests(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := rs.ListMine(c.Request.Context(), helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContracts(list), ""))
	}
}

func GetRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		req, err := rs.Get(c.Request.Context(), id, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContract(req), ""))
	}
}

func CancelRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		req, err := rs.Cancel(c.Request.Context(), id, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContract(req), "Die Anfrage wurde storniert."))
	}
}

// SubmitDetails reads the multipart detail form with the signed contract.
func SubmitDetails(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		details, err := parseDetailsForm(c)
		if err != nil {
			respondError(c, err)
			return
		}

		req, stored, err := rs.SubmitDetails(c.Request.Context(), id, helpers.PrincipalFrom(c), details)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"request": stripContract(req),
			"file":    stored,
		}, "Ihre Details wurden übermittelt."))
	}
}

func parseDetailsForm(c *gin.Context) (models.DetailSubmission, error) {
	var d models.DetailSubmission
	times := []struct {
		field string
		dst   *time.Time
	}{
		{"start_date", &d.StartDate},
		{"end_date", &d.EndDate},
		{"key_handover_at", &d.KeyHandoverAt},
		{"key_return_at", &d.KeyReturnAt},
	}
	for _, t := range times {
		raw := c.PostForm(t.field)
		if raw == "" {
			return d, models.NewValidationError("", "Bitte füllen Sie alle Datums- und Zeitfelder aus.")
		}
		parsed, err := parseTime(raw)
		if err != nil {
			return d, models.NewValidationError(t.field, "Ungültiges Datum.")
		}
		*t.dst = parsed
	}

	d.HouseRulesAccepted = formBool(c, "house_rules_accepted")
	d.LeaseAccepted = formBool(c, "lease_accepted")
	d.TermsAccepted = formBool(c, "terms_accepted")
	d.YouthProtectionAccepted = formBool(c, "youth_protection_accepted")

	header, err := c.FormFile(contractFormField)
	if err != nil {
		return d, models.NewValidationError(contractFormField, "Bitte laden Sie den unterschriebenen Vertrag hoch.")
	}
	if header.Size > models.MaxContractSize {
		return d, models.NewValidationError(contractFormField, "Die Datei darf maximal 10 MB groß sein.")
	}
	f, err := header.Open()
	if err != nil {
		return d, fmt.Errorf("open contract upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, models.MaxContractSize+1))
	if err != nil {
		return d, fmt.Errorf("read contract upload: %w", err)
	}

	mimeType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	d.File = &models.ContractFile{
		Name:     header.Filename,
		MimeType: mimeType,
		Size:     header.Size,
		Data:     data,
	}
	return d, nil
}

func formBool(c *gin.Context, field string) bool {
	raw := strings.ToLower(strings.TrimSpace(c.PostForm(field)))
	if raw == "on" {
		return true
	}
	b, _ := strconv.ParseBool(raw)
	return b
}

// DownloadContract redirects to a signed storage link or streams the inline copy.
func DownloadContract(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		file, err := rs.ContractFile(c.Request.Context(), id, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if file.URL != "" {
			c.Redirect(http.StatusFound, file.URL)
			return
		}
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
		c.Data(http.StatusOK, file.MimeType, file.Data)
	}
}

// ListRequests is the admin overview. stage takes a comma separated list.
func ListRequests(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.RequestFilter{
			Offset: queryInt(c, "offset", 0),
			Limit:  queryInt(c, "limit", 0),
		}
		for _, s := range strings.Split(c.Query("stage"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Stages = append(filter.Stages, models.RequestStage(s))
			}
		}
		if c.Query("from") != "" || c.Query("to") != "" {
			from, to, ok := window(c, eventListDays)
			if !ok {
				return
			}
			filter.From, filter.To = &from, &to
		}

		list, total, err := rs.ListAll(c.Request.Context(), helpers.PrincipalFrom(c), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(stripContracts(list), filter.Offset, filter.Limit, total))
	}
}

func AcceptRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body reviewBody
		_ = c.ShouldBindJSON(&body)

		req, err := rs.Accept(c.Request.Context(), id, helpers.PrincipalFrom(c), body.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContract(req), "Anfrage vorläufig angenommen."))
	}
}

func RejectRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body reviewBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Bitte geben Sie einen Ablehnungsgrund an.")
			return
		}

		req, err := rs.Reject(c.Request.Context(), id, helpers.PrincipalFrom(c), body.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContract(req), "Anfrage abgelehnt."))
	}
}

func FinalAcceptRequest(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body reviewBody
		_ = c.ShouldBindJSON(&body)

		req, ev, err := rs.FinalAccept(c.Request.Context(), id, helpers.PrincipalFrom(c), body.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"request": stripContract(req),
			"event":   ev,
		}, "Anfrage bestätigt und Veranstaltung angelegt."))
	}
}

func UpdateRequestNotes(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var body reviewBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, msgBadPayload)
			return
		}

		req, err := rs.UpdateNotes(c.Request.Context(), id, helpers.PrincipalFrom(c), body.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stripContract(req), "Notiz gespeichert."))
	}
}

func RequestConflicts(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		entries, err := rs.Conflicts(c.Request.Context(), id, helpers.PrincipalFrom(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(entries, ""))
	}
}

func RequestActivity(rs *services.RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		activity, err := rs.Activity(c.Request.Context(), id, helpers.PrincipalFrom(c), queryInt(c, "limit", 100))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(activity, ""))
	}
}
