package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/model"
	"github.com/aggiex/accelerator/internal/storage"
)

const validApplicationBody = `{
	"firstName": "Ada",
	"lastName": "Lovelace",
	"email": "Ada@Example.COM",
	"affiliation": "alumni",
	"role": "advisor",
	"message": "Building analytical engines"
}`

func TestApplyCreatesApplicationAndContact(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	response := harness.do(http.MethodPost, "/api/apply", validApplicationBody, nil)
	require.Equal(testingT, http.StatusCreated, response.Code, response.Body.String())

	payload := decodeBody(testingT, response)
	require.Equal(testingT, true, payload["success"])
	require.NotEmpty(testingT, payload["id"])
	require.Contains(testingT, payload["message"], "Application submitted successfully")

	count, countErr := harness.applications.CountApplications(context.Background())
	require.NoError(testingT, countErr)
	require.EqualValues(testingT, 1, count)

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(testingT, findErr)
	require.Equal(testingT, model.ContactSourceApplication, contact.Source)
	require.Equal(testingT, []string{"advisor", "alumni"}, contact.Interests)
	require.Equal(testingT, "Ada", contact.FirstName)
	require.True(testingT, contact.NewsletterSubscribed)

	pushed := harness.notifier.received()
	require.Len(testingT, pushed, 1)
	require.Equal(testingT, "New AggieX application from Ada Lovelace (ada@example.com) - advisor", pushed[0].Message)
	require.True(testingT, pushed[0].Urgent)

	require.Contains(testingT, harness.metricsOutput(), `aggiex_intake_submissions_total{endpoint="apply",outcome="created"} 1`)
}

func TestApplyRejectsInvalidSubmissions(testingT *testing.T) {
	testCases := []struct {
		name            string
		body            string
		expectedMessage string
	}{
		{
			name:            "malformed json",
			body:            `{"firstName":`,
			expectedMessage: "Invalid request body",
		},
		{
			name:            "missing last name",
			body:            `{"firstName":"Ada","email":"ada@example.com","affiliation":"alumni","role":"advisor"}`,
			expectedMessage: "Missing required fields",
		},
		{
			name:            "invalid email",
			body:            `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example","affiliation":"alumni","role":"advisor"}`,
			expectedMessage: "Invalid email format",
		},
		{
			name:            "unknown role",
			body:            `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","affiliation":"alumni","role":"ceo"}`,
			expectedMessage: "Invalid role",
		},
		{
			name:            "first name too long",
			body:            `{"firstName":"` + strings.Repeat("a", 51) + `","lastName":"Lovelace","email":"ada@example.com","affiliation":"alumni","role":"advisor"}`,
			expectedMessage: "First name too long",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(subTest *testing.T) {
			harness := newTestHarness(subTest, harnessOptions{})

			response := harness.do(http.MethodPost, "/api/apply", testCase.body, nil)
			require.Equal(subTest, http.StatusBadRequest, response.Code)
			require.Equal(subTest, testCase.expectedMessage, decodeBody(subTest, response)["error"])

			count, countErr := harness.applications.CountApplications(context.Background())
			require.NoError(subTest, countErr)
			require.Zero(subTest, count)
			require.Empty(subTest, harness.notifier.received())
		})
	}
}

func TestApplyRejectsDuplicateEmailIgnoringCase(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	first := harness.do(http.MethodPost, "/api/apply", validApplicationBody, nil)
	require.Equal(testingT, http.StatusCreated, first.Code)

	duplicateBody := strings.Replace(validApplicationBody, "Ada@Example.COM", "  ada@EXAMPLE.com ", 1)
	second := harness.do(http.MethodPost, "/api/apply", duplicateBody, nil)
	require.Equal(testingT, http.StatusConflict, second.Code)
	require.Equal(testingT, "Application already submitted with this email", decodeBody(testingT, second)["error"])

	count, countErr := harness.applications.CountApplications(context.Background())
	require.NoError(testingT, countErr)
	require.EqualValues(testingT, 1, count)
	require.Len(testingT, harness.notifier.received(), 1)
}

func TestApplyLooksUpApplicationsOnce(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	applicationLookups := 0
	require.NoError(testingT, harness.database.Callback().Query().After("gorm:query").Register("test:count_application_lookups", func(database *gorm.DB) {
		if database.Statement.Table == "applications" {
			applicationLookups++
		}
	}))

	response := harness.do(http.MethodPost, "/api/apply", validApplicationBody, nil)
	require.Equal(testingT, http.StatusCreated, response.Code)
	require.Equal(testingT, 1, applicationLookups)
}

func TestApplyKeepsInterestsOfExistingContact(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	contactResponse := harness.do(http.MethodPost, "/api/contacts", `{"email":"ada@example.com","interests":["podcast"]}`, nil)
	require.Equal(testingT, http.StatusCreated, contactResponse.Code)

	applyResponse := harness.do(http.MethodPost, "/api/apply", validApplicationBody, nil)
	require.Equal(testingT, http.StatusCreated, applyResponse.Code)

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "ada@example.com")
	require.NoError(testingT, findErr)
	require.Equal(testingT, []string{"podcast"}, contact.Interests)
	require.Equal(testingT, model.ContactSourceApplication, contact.Source)
	require.Equal(testingT, "Lovelace", contact.LastName)
}

func TestCreateContactAppliesDefaults(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	response := harness.do(http.MethodPost, "/api/contacts", `{"email":" Grace@Example.com ","firstName":"Grace"}`, nil)
	require.Equal(testingT, http.StatusCreated, response.Code, response.Body.String())

	payload := decodeBody(testingT, response)
	require.Equal(testingT, true, payload["success"])
	require.Equal(testingT, "Contact added successfully!", payload["message"])
	contact := payload["contact"].(map[string]any)
	require.Equal(testingT, "grace@example.com", contact["email"])
	require.Equal(testingT, "newsletter", contact["source"])
	require.Equal(testingT, []any{}, contact["interests"])
	require.Equal(testingT, true, contact["newsletterSubscribed"])
	require.Equal(testingT, true, contact["podcastNotifications"])
	require.Equal(testingT, false, contact["emailVerified"])
	require.NotContains(testingT, contact, "verificationToken")
}

func TestCreateContactUpdatesExistingContact(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	first := harness.do(http.MethodPost, "/api/contacts", `{"email":"grace@example.com","firstName":"Grace","interests":["events"]}`, nil)
	require.Equal(testingT, http.StatusCreated, first.Code)
	second := harness.do(http.MethodPost, "/api/contacts", `{"email":"GRACE@example.com","source":"event","newsletterSubscribed":false}`, nil)
	require.Equal(testingT, http.StatusCreated, second.Code)

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(testingT, findErr)
	require.Equal(testingT, "Grace", contact.FirstName)
	require.Equal(testingT, "event", contact.Source)
	require.Equal(testingT, []string{}, contact.Interests)
	require.False(testingT, contact.NewsletterSubscribed)

	analytics, analyticsErr := harness.contacts.Analytics(context.Background())
	require.NoError(testingT, analyticsErr)
	require.EqualValues(testingT, 1, analytics.TotalContacts)
	require.Contains(testingT, harness.metricsOutput(), `aggiex_intake_submissions_total{endpoint="contacts",outcome="updated"} 1`)
}

func TestCreateContactValidatesEmail(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	missing := harness.do(http.MethodPost, "/api/contacts", `{"firstName":"Grace"}`, nil)
	require.Equal(testingT, http.StatusBadRequest, missing.Code)
	require.Equal(testingT, "Email is required", decodeBody(testingT, missing)["error"])

	invalid := harness.do(http.MethodPost, "/api/contacts", `{"email":"grace"}`, nil)
	require.Equal(testingT, http.StatusBadRequest, invalid.Code)
	require.Equal(testingT, "Invalid email format", decodeBody(testingT, invalid)["error"])
}

func TestSubscribeNewsletterForcesSubscriptions(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	optOut := harness.do(http.MethodPost, "/api/contacts", `{"email":"grace@example.com","newsletterSubscribed":false,"podcastNotifications":false}`, nil)
	require.Equal(testingT, http.StatusCreated, optOut.Code)

	response := harness.do(http.MethodPost, "/api/newsletter/subscribe", `{"email":"grace@example.com","firstName":"Grace"}`, nil)
	require.Equal(testingT, http.StatusOK, response.Code, response.Body.String())
	payload := decodeBody(testingT, response)
	require.Equal(testingT, "Successfully subscribed to newsletter and podcast notifications!", payload["message"])

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(testingT, findErr)
	require.Equal(testingT, model.ContactSourcePodcast, contact.Source)
	require.True(testingT, contact.NewsletterSubscribed)
	require.True(testingT, contact.PodcastNotifications)
	require.Equal(testingT, "Grace", contact.FirstName)
}

func TestSubscribeNewsletterValidatesEmail(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	response := harness.do(http.MethodPost, "/api/newsletter/subscribe", `{"email":"not an email"}`, nil)
	require.Equal(testingT, http.StatusBadRequest, response.Code)
	require.Equal(testingT, "Invalid email format", decodeBody(testingT, response)["error"])
}

func TestSendVerificationRequiresEmailAndSource(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	for _, body := range []string{`{"email":"grace@example.com"}`, `{"source":"podcast"}`, `{"email":"  ","source":"podcast"}`} {
		response := harness.do(http.MethodPost, "/api/email/send-verification", body, nil)
		require.Equal(testingT, http.StatusBadRequest, response.Code, body)
		require.Equal(testingT, "Email and source are required", decodeBody(testingT, response)["error"])
	}
	require.Empty(testingT, harness.sender.sent())
}

func TestSendVerificationEmailsLink(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	response := harness.do(http.MethodPost, "/api/email/send-verification", `{"email":"Grace@Example.com","firstName":"Grace","source":"application"}`, nil)
	require.Equal(testingT, http.StatusOK, response.Code, response.Body.String())
	payload := decodeBody(testingT, response)
	require.Equal(testingT, "Verification email sent successfully", payload["message"])
	require.Equal(testingT, "grace@example.com", payload["email"])

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(testingT, findErr)
	require.NotNil(testingT, contact.VerificationToken)
	require.False(testingT, contact.EmailVerified)

	sent := harness.sender.sent()
	require.Len(testingT, sent, 1)
	require.Equal(testingT, "grace@example.com", sent[0].To)
	require.Contains(testingT, sent[0].Subject, "AggieX Accelerator")
	require.Contains(testingT, sent[0].Text, testFrontendURL+"/verify/"+*contact.VerificationToken)
}

func TestSendVerificationFailureRemovesNewContact(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{development: true})
	harness.sender.failWith = errors.New("smtp unavailable")

	response := harness.do(http.MethodPost, "/api/email/send-verification", `{"email":"grace@example.com","source":"podcast"}`, nil)
	require.Equal(testingT, http.StatusInternalServerError, response.Code)
	payload := decodeBody(testingT, response)
	require.Equal(testingT, "Failed to send verification email", payload["error"])
	require.Contains(testingT, payload["details"], "smtp unavailable")

	_, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.ErrorIs(testingT, findErr, storage.ErrContactNotFound)
}

func TestSendVerificationFailureHidesDetailsOutsideDevelopment(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})
	harness.sender.failWith = errors.New("smtp unavailable")

	response := harness.do(http.MethodPost, "/api/email/send-verification", `{"email":"grace@example.com","source":"podcast"}`, nil)
	require.Equal(testingT, http.StatusInternalServerError, response.Code)
	require.NotContains(testingT, decodeBody(testingT, response), "details")
}

func issueVerificationToken(testingT *testing.T, harness *testHarness, email string, source string) string {
	testingT.Helper()
	response := harness.do(http.MethodPost, "/api/email/send-verification", `{"email":"`+email+`","source":"`+source+`"}`, nil)
	require.Equal(testingT, http.StatusOK, response.Code, response.Body.String())
	contact, findErr := harness.contacts.FindByEmail(context.Background(), email)
	require.NoError(testingT, findErr)
	require.NotNil(testingT, contact.VerificationToken)
	return *contact.VerificationToken
}

func redirectTarget(testingT *testing.T, location string) (string, url.Values) {
	testingT.Helper()
	parsed, parseErr := url.Parse(location)
	require.NoError(testingT, parseErr)
	return parsed.Scheme + "://" + parsed.Host + parsed.Path, parsed.Query()
}

func TestVerifyEmailRedirectsOnSuccess(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})
	token := issueVerificationToken(testingT, harness, "grace@example.com", "podcast")

	response := harness.do(http.MethodGet, "/api/email/verify/"+token, "", nil)
	require.Equal(testingT, http.StatusFound, response.Code)

	target, query := redirectTarget(testingT, response.Header().Get("Location"))
	require.Equal(testingT, testFrontendURL+"/verify/"+token, target)
	require.Equal(testingT, "success", query.Get("status"))
	require.Equal(testingT, "grace@example.com", query.Get("email"))
	require.Equal(testingT, "podcast", query.Get("source"))

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(testingT, findErr)
	require.True(testingT, contact.EmailVerified)
	require.Nil(testingT, contact.VerificationToken)

	sent := harness.sender.sent()
	require.Len(testingT, sent, 2)
	require.Contains(testingT, sent[1].Subject, "Email Verified")

	replay := harness.do(http.MethodGet, "/api/email/verify/"+token, "", nil)
	require.Equal(testingT, http.StatusFound, replay.Code)
	_, replayQuery := redirectTarget(testingT, replay.Header().Get("Location"))
	require.Equal(testingT, "error", replayQuery.Get("status"))
	require.Equal(testingT, "Invalid verification token", replayQuery.Get("message"))
}

func TestVerifyEmailRedirectsOnUnknownToken(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	response := harness.do(http.MethodGet, "/api/email/verify/not-a-token", "", nil)
	require.Equal(testingT, http.StatusFound, response.Code)
	target, query := redirectTarget(testingT, response.Header().Get("Location"))
	require.Equal(testingT, testFrontendURL+"/verify/not-a-token", target)
	require.Equal(testingT, "error", query.Get("status"))
	require.Equal(testingT, "Invalid verification token", query.Get("message"))
}

func TestVerifyEmailRedirectsOnExpiredToken(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})
	token := issueVerificationToken(testingT, harness, "grace@example.com", "application")

	harness.clock.Advance(25 * time.Hour)

	response := harness.do(http.MethodGet, "/api/email/verify/"+token, "", nil)
	require.Equal(testingT, http.StatusFound, response.Code)
	_, query := redirectTarget(testingT, response.Header().Get("Location"))
	require.Equal(testingT, "error", query.Get("status"))
	require.Equal(testingT, "Verification token has expired", query.Get("message"))

	contact, findErr := harness.contacts.FindByEmail(context.Background(), "grace@example.com")
	require.NoError(testingT, findErr)
	require.False(testingT, contact.EmailVerified)
	require.Len(testingT, harness.sender.sent(), 1)
}

func TestAnalyticsSummarizesContacts(testingT *testing.T) {
	harness := newTestHarness(testingT, harnessOptions{})

	require.Equal(testingT, http.StatusCreated, harness.do(http.MethodPost, "/api/apply", validApplicationBody, nil).Code)
	require.Equal(testingT, http.StatusCreated, harness.do(http.MethodPost, "/api/contacts", `{"email":"grace@example.com","podcastNotifications":false}`, nil).Code)
	require.Equal(testingT, http.StatusOK, harness.do(http.MethodPost, "/api/newsletter/subscribe", `{"email":"linus@example.com"}`, nil).Code)

	response := harness.do(http.MethodGet, "/api/contacts/analytics", "", nil)
	require.Equal(testingT, http.StatusOK, response.Code)
	payload := decodeBody(testingT, response)
	require.EqualValues(testingT, 3, payload["totalContacts"])
	require.EqualValues(testingT, 3, payload["newsletterSubscribers"])
	require.EqualValues(testingT, 2, payload["podcastSubscribers"])
	require.EqualValues(testingT, 3, payload["activeContacts"])
	require.Equal(testingT, []any{
		map[string]any{"source": "application", "count": float64(1)},
		map[string]any{"source": "newsletter", "count": float64(1)},
		map[string]any{"source": "podcast", "count": float64(1)},
	}, payload["sourceBreakdown"])
}
