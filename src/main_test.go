package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"pbs/src/config"
	"pbs/src/db"
	"pbs/src/lib"
	"pbs/src/models"
	"pbs/src/types"
	"pbs/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sinkEvent struct {
	Event  string
	UserID uint
	ToAll  bool
}

type testSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *testSink) EmitToAll(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Event: event, ToAll: true})
	return nil
}

func (s *testSink) EmitToUser(userID uint, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Event: event, UserID: userID})
	return nil
}

func (s *testSink) find(event string) (sinkEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Event == event {
			return e, true
		}
	}
	return sinkEvent{}, false
}

type APITestSuite struct {
	suite.Suite
	Router    *gin.Engine
	DB        *gorm.DB
	Sink      *testSink
	UploadDir string

	customerToken string
	customerID    uint
	otherToken    string
	adminToken    string
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)

	d, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("error opening database: %s", err.Error())
	}
	sqlDB, err := d.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)
	db.NewDB(d)
	s.DB = d
	require.NoError(s.T(), d.AutoMigrate(&models.User{}, &models.Booking{}))

	s.UploadDir = s.T().TempDir()
	config.NewApp(&config.App{
		TimeSlots:       []string{"09:00-11:00", "11:30-13:30", "14:00-16:00", "16:30-18:30", "19:00-21:00"},
		MinPlayers:      2,
		MaxPlayers:      20,
		ReceiptMaxBytes: 5 * 1024 * 1024,
		UploadDir:       s.UploadDir,
	})
	lib.NewReceiptStore(&lib.DiskReceiptStore{Dir: s.UploadDir})

	s.Router = setupRouter()

	s.customerToken, s.customerID = s.register("ana@example.com", "paintball123", "Ana", "Kovac")
	s.otherToken, _ = s.register("ivan@example.com", "paintball123", "Ivan", "Horvat")

	hash, err := utils.HashPassword("paintball123")
	require.NoError(s.T(), err)
	admin := models.User{Email: "staff@example.com", Password: hash, FirstName: "Staff", LastName: "Member", Role: string(types.ROLE_ADMIN)}
	require.NoError(s.T(), s.DB.Create(&admin).Error)
	s.adminToken, err = utils.GenerateJWT(admin.Email, admin.ID, admin.Role)
	require.NoError(s.T(), err)
}

func (s *APITestSuite) SetupTest() {
	s.Sink = &testSink{}
	lib.NewHub(s.Sink)
}

func (s *APITestSuite) do(method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) doJSON(method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return s.do(method, target, token, reader, "application/json")
}

func (s *APITestSuite) register(email, password, first, last string) (string, uint) {
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":%q,"last_name":%q}`, email, password, first, last)
	w := s.doJSON(http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	res := w.Body.String()
	return gjson.Get(res, "token").String(), uint(gjson.Get(res, "user.id").Uint())
}

func (s *APITestSuite) createBooking(token, date, slot string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"booking_date":%q,"time_slot":%q,"number_of_players":6,"equipment":"included","total_price":150}`, date, slot)
	return s.doJSON(http.MethodPost, "/api/v1/bookings", token, body)
}

func (s *APITestSuite) waitForEvent(event string) sinkEvent {
	var found sinkEvent
	require.Eventually(s.T(), func() bool {
		e, ok := s.Sink.find(event)
		if ok {
			found = e
		}
		return ok
	}, time.Second, 5*time.Millisecond)
	return found
}

func (s *APITestSuite) TestHealthcheck() {
	w := s.doJSON(http.MethodGet, "/", "", "")
	require.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *APITestSuite) TestCorsAppliesToAPIRoutes() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/availability/2024-08-01", nil)
	req.Header.Set("Origin", "http://booking.example.com")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.NotEmpty(s.T(), w.Header().Get("Access-Control-Allow-Origin"))
}

func (s *APITestSuite) TestRegisterAndLogin() {
	w := s.doJSON(http.MethodPost, "/api/v1/auth/register", "", `{"email":"ana@example.com","password":"paintball123","first_name":"Ana","last_name":"Kovac"}`)
	require.Equal(s.T(), http.StatusConflict, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/auth/login", "", `{"email":"ana@example.com","password":"wrong-password"}`)
	require.Equal(s.T(), http.StatusUnauthorized, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/auth/login", "", `{"email":"ana@example.com","password":"paintball123"}`)
	require.Equal(s.T(), http.StatusOK, w.Code)
	res := w.Body.String()
	require.NotEmpty(s.T(), gjson.Get(res, "token").String())
	require.Equal(s.T(), "customer", gjson.Get(res, "user.role").String())
	// password hashes never leave the server
	require.False(s.T(), gjson.Get(res, "user.password").Exists())

	w = s.doJSON(http.MethodGet, "/api/v1/auth/me", s.customerToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Equal(s.T(), "ana@example.com", gjson.Get(w.Body.String(), "data.email").String())

	w = s.doJSON(http.MethodGet, "/api/v1/auth/me", "", "")
	require.Equal(s.T(), http.StatusUnauthorized, w.Code)

	w = s.doJSON(http.MethodGet, "/api/v1/auth/me", "not-a-token", "")
	require.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *APITestSuite) TestAvailabilityIsPublic() {
	w := s.doJSON(http.MethodGet, "/api/v1/bookings/availability/2024-07-01", "", "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	res := w.Body.String()
	require.Equal(s.T(), "2024-07-01", gjson.Get(res, "date").String())
	require.EqualValues(s.T(), 5, gjson.Get(res, "availableSlots.#").Int())
	require.EqualValues(s.T(), 0, gjson.Get(res, "bookedSlots.#").Int())

	w = s.doJSON(http.MethodGet, "/api/v1/bookings/availability/not-a-date", "", "")
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodGet, "/api/v1/bookings/availability/2024-02-30", "", "")
	require.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestBookingLifecycle() {
	date := "2024-07-02"

	w := s.createBooking(s.customerToken, date, "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	res := w.Body.String()
	bookingID := gjson.Get(res, "data.id").Uint()
	require.NotZero(s.T(), bookingID)
	require.Equal(s.T(), "pending", gjson.Get(res, "data.status").String())
	e := s.waitForEvent(types.EVENT_NEW_BOOKING)
	require.True(s.T(), e.ToAll)

	// the slot is now taken for everyone
	w = s.createBooking(s.otherToken, date, "09:00-11:00")
	require.Equal(s.T(), http.StatusConflict, w.Code)

	w = s.doJSON(http.MethodGet, "/api/v1/bookings/availability/"+date, "", "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.EqualValues(s.T(), 4, gjson.Get(w.Body.String(), "availableSlots.#").Int())
	require.Equal(s.T(), "09:00-11:00", gjson.Get(w.Body.String(), "bookedSlots.0").String())

	w = s.doJSON(http.MethodGet, "/api/v1/bookings", s.customerToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.GreaterOrEqual(s.T(), gjson.Get(w.Body.String(), "count").Int(), int64(1))

	target := fmt.Sprintf("/api/v1/bookings/%d", bookingID)
	w = s.doJSON(http.MethodGet, target, s.customerToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Equal(s.T(), date, gjson.Get(w.Body.String(), "data.booking_date").String())

	// someone else's booking reads as absent
	w = s.doJSON(http.MethodGet, target, s.otherToken, "")
	require.Equal(s.T(), http.StatusNotFound, w.Code)
	w = s.doJSON(http.MethodDelete, target, s.otherToken, "")
	require.Equal(s.T(), http.StatusNotFound, w.Code)

	w = s.doJSON(http.MethodDelete, target, s.customerToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	s.waitForEvent(types.EVENT_BOOKING_CANCELED)

	// cancelling again still acks
	w = s.doJSON(http.MethodDelete, target, s.customerToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)

	// the slot is free again
	w = s.createBooking(s.otherToken, date, "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code)
}

func (s *APITestSuite) TestCreateValidation() {
	w := s.createBooking("", "2024-07-03", "09:00-11:00")
	require.Equal(s.T(), http.StatusUnauthorized, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/bookings", s.customerToken, `{"time_slot":"09:00-11:00"}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.createBooking(s.customerToken, "03-07-2024", "09:00-11:00")
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.createBooking(s.customerToken, "2024-07-03", "10:00-12:00")
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/bookings", s.customerToken,
		`{"booking_date":"2024-07-03","time_slot":"09:00-11:00","number_of_players":1,"equipment":"included","total_price":150}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/bookings", s.customerToken,
		`{"booking_date":"2024-07-03","time_slot":"09:00-11:00","number_of_players":21,"equipment":"included","total_price":150}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPost, "/api/v1/bookings", s.customerToken,
		`{"booking_date":"2024-07-03","time_slot":"09:00-11:00","number_of_players":6,"equipment":"rental","total_price":150}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestReschedule() {
	date := "2024-07-04"
	w := s.createBooking(s.customerToken, date, "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code)
	w = s.createBooking(s.customerToken, date, "11:30-13:30")
	require.Equal(s.T(), http.StatusCreated, w.Code)
	secondID := gjson.Get(w.Body.String(), "data.id").Uint()
	target := fmt.Sprintf("/api/v1/bookings/%d", secondID)

	// partial update only touches the sent fields
	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"number_of_players":10}`)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	res := w.Body.String()
	require.EqualValues(s.T(), 10, gjson.Get(res, "data.number_of_players").Int())
	require.Equal(s.T(), "11:30-13:30", gjson.Get(res, "data.time_slot").String())

	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"time_slot":"09:00-11:00"}`)
	require.Equal(s.T(), http.StatusConflict, w.Code)

	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"time_slot":"14:00-16:00"}`)
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Equal(s.T(), "14:00-16:00", gjson.Get(w.Body.String(), "data.time_slot").String())

	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"number_of_players":50}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"time_slot":"10:00-12:00"}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestStatusUpdates() {
	w := s.createBooking(s.customerToken, "2024-07-05", "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code)
	bookingID := gjson.Get(w.Body.String(), "data.id").Uint()
	target := fmt.Sprintf("/api/v1/bookings/%d/status", bookingID)

	w = s.doJSON(http.MethodPut, target, s.customerToken, `{"status":"confirmed"}`)
	require.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.doJSON(http.MethodPut, target, s.adminToken, `{"status":"confirmed"}`)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	require.Equal(s.T(), "confirmed", gjson.Get(w.Body.String(), "data.status").String())

	// the owner gets the push, not the admin who made the change
	e := s.waitForEvent(types.EVENT_BOOKING_STATUS_UPDATED)
	require.Equal(s.T(), s.customerID, e.UserID)

	w = s.doJSON(http.MethodPut, target, s.adminToken, `{"status":"pending"}`)
	require.Equal(s.T(), http.StatusUnprocessableEntity, w.Code)

	w = s.doJSON(http.MethodPut, target, s.adminToken, `{"status":"cancelled"}`)
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.doJSON(http.MethodPut, target, s.adminToken, `{"status":"confirmed"}`)
	require.Equal(s.T(), http.StatusUnprocessableEntity, w.Code)

	w = s.doJSON(http.MethodPut, target, s.adminToken, `{"status":"archived"}`)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.doJSON(http.MethodPut, "/api/v1/bookings/99999/status", s.adminToken, `{"status":"confirmed"}`)
	require.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *APITestSuite) multipartReceipt(filename, contentType string, payload []byte) (io.Reader, string) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="receipt"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(s.T(), err)
	_, err = part.Write(payload)
	require.NoError(s.T(), err)
	require.NoError(s.T(), mw.Close())
	return buf, mw.FormDataContentType()
}

func (s *APITestSuite) TestReceiptUpload() {
	w := s.createBooking(s.customerToken, "2024-07-06", "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code)
	bookingID := gjson.Get(w.Body.String(), "data.id").Uint()
	target := fmt.Sprintf("/api/v1/bookings/%d/receipt", bookingID)

	body, ct := s.multipartReceipt("receipt.pdf", "application/pdf", []byte("%PDF-1.4"))
	w = s.do(http.MethodPost, target, s.customerToken, body, ct)
	require.Equal(s.T(), http.StatusBadRequest, w.Code)

	oversize := bytes.Repeat([]byte{0x89}, 6*1024*1024)
	body, ct = s.multipartReceipt("receipt.png", "image/png", oversize)
	w = s.do(http.MethodPost, target, s.customerToken, body, ct)
	require.Equal(s.T(), http.StatusRequestEntityTooLarge, w.Code)

	// the failed uploads left nothing on the record
	w = s.doJSON(http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", bookingID), s.customerToken, "")
	require.False(s.T(), gjson.Get(w.Body.String(), "data.payment_receipt").Exists())

	payload := bytes.Repeat([]byte{0x89}, 512)
	body, ct = s.multipartReceipt("receipt.png", "image/png", payload)
	w = s.do(http.MethodPost, target, s.customerToken, body, ct)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	res := w.Body.String()
	filename := gjson.Get(res, "filename").String()
	require.True(s.T(), strings.HasPrefix(filename, "receipt-"))
	require.True(s.T(), strings.HasSuffix(filename, ".png"))
	require.Equal(s.T(), filename, gjson.Get(res, "data.payment_receipt").String())

	stat, err := os.Stat(path.Join(s.UploadDir, filename))
	require.NoError(s.T(), err)
	require.EqualValues(s.T(), len(payload), stat.Size())

	e := s.waitForEvent(types.EVENT_RECEIPT_UPLOADED)
	require.Equal(s.T(), s.customerID, e.UserID)

	// receipts only attach to the caller's own booking
	body, ct = s.multipartReceipt("receipt.png", "image/png", payload)
	w = s.do(http.MethodPost, target, s.otherToken, body, ct)
	require.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *APITestSuite) TestAdminListAll() {
	w := s.doJSON(http.MethodGet, "/api/v1/bookings/all", s.customerToken, "")
	require.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.createBooking(s.customerToken, "2024-07-07", "09:00-11:00")
	require.Equal(s.T(), http.StatusCreated, w.Code)

	w = s.doJSON(http.MethodGet, "/api/v1/bookings/all", s.adminToken, "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	res := w.Body.String()
	require.Greater(s.T(), gjson.Get(res, "count").Int(), int64(0))
	first := gjson.Get(res, "data.0")
	require.NotEmpty(s.T(), first.Get("email").String())
	require.NotEmpty(s.T(), first.Get("first_name").String())
	require.NotEmpty(s.T(), first.Get("booking_date").String())
}

func (s *APITestSuite) TestUpdateProfile() {
	w := s.doJSON(http.MethodPut, "/api/v1/users/profile", s.customerToken, `{"phone":"+385911234567"}`)
	require.Equal(s.T(), http.StatusOK, w.Code)
	res := w.Body.String()
	require.Equal(s.T(), "+385911234567", gjson.Get(res, "data.phone").String())
	// untouched fields stay put
	require.Equal(s.T(), "Ana", gjson.Get(res, "data.first_name").String())

	w = s.doJSON(http.MethodPut, "/api/v1/users/profile", "", `{"phone":"+385911234567"}`)
	require.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *APITestSuite) TestWeatherFallsBackToMock() {
	w := s.doJSON(http.MethodGet, "/api/v1/weather/current", "", "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	res := w.Body.String()
	require.NotEmpty(s.T(), gjson.Get(res, "weather.description").String())
	require.True(s.T(), gjson.Get(res, "weather.temperature").Exists())

	w = s.doJSON(http.MethodGet, "/api/v1/weather/forecast", "", "")
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Greater(s.T(), gjson.Get(w.Body.String(), "forecast.#").Int(), int64(0))
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
