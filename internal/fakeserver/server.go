// Package fakeserver is an in-memory stand-in for the attendance server and
// the face demo service, used by tests and by `rollcalld --fake`.
package fakeserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const signingKey = "fakeserver-signing-key"

// User is a server-side account.
type User struct {
	ID       int64
	Email    string
	Password string
	Name     string
	Role     string // ogrenci, ogretmen, admin
	HasFace  bool
}

// Course is a server-side course.
type Course struct {
	ID        int64
	Name      string
	Code      string
	TeacherID int64
	Enrolled  []int64
}

// Session is a server-side attendance session.
type Session struct {
	ID       int64
	CourseID int64
	Active   bool
	Started  time.Time
	Joined   []Join
}

// Join records one student's presence.
type Join struct {
	UserID int64
	At     time.Time
}

// JoinDecision lets tests decide whether a submitted face matches.
// An empty message with ok true uses the default success message.
type JoinDecision func(userID, sessionID int64, image []byte) (ok bool, message string)

// Server holds the fake state. All fields are guarded by mu; use the
// helper methods from tests.
type Server struct {
	mu       sync.Mutex
	users    []*User
	courses  []*Course
	sessions []*Session
	nextID   int64
	calls    map[string]int
	now      func() time.Time

	// Join, when set, decides the outcome of every join call.
	Join JoinDecision
	// Delay is applied to every request before it is handled.
	Delay time.Duration

	engine *gin.Engine
}

// New builds an empty fake server.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		nextID: 100,
		calls:  make(map[string]int),
		now:    time.Now,
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.count())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"durum": "ok", "mesaj": "Yoklama Sistemi API", "versiyon": "2.0"})
	})
	r.POST("/auth/giris", s.login)

	authed := r.Group("/", s.requireToken())
	authed.GET("/auth/ben", s.me)
	authed.POST("/yuz/kayit", s.requireRole("ogrenci"), s.registerFace)

	teacher := authed.Group("/ogretmen", s.requireRole("ogretmen"))
	teacher.GET("/derslerim", s.teacherCourses)
	teacher.POST("/yoklama/baslat", s.startAttendance)
	teacher.POST("/yoklama/bitir", s.endAttendance)
	teacher.GET("/yoklama/aktif", s.activeSession)

	student := authed.Group("/ogrenci", s.requireRole("ogrenci"))
	student.GET("/derslerim", s.studentCourses)
	student.GET("/aktif-yoklamalar", s.studentSessions)
	student.POST("/yoklama/katil", s.joinSession)

	s.engine = r
	return s
}

// Handler returns the HTTP handler, for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// AddUser creates an account and returns it.
func (s *Server) AddUser(email, password, name, role string, hasFace bool) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{ID: s.id(), Email: email, Password: password, Name: name, Role: role, HasFace: hasFace}
	s.users = append(s.users, u)
	return u
}

// AddCourse creates a course owned by teacher with the given students.
func (s *Server) AddCourse(name, code string, teacher *User, students ...*User) *Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Course{ID: s.id(), Name: name, Code: code, TeacherID: teacher.ID}
	for _, st := range students {
		c.Enrolled = append(c.Enrolled, st.ID)
	}
	s.courses = append(s.courses, c)
	return c
}

// OpenSession starts an attendance session directly, bypassing the API.
func (s *Server) OpenSession(course *Course) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{ID: s.id(), CourseID: course.ID, Active: true, Started: s.now()}
	s.sessions = append(s.sessions, sess)
	return sess
}

// CloseSession ends a session directly, bypassing the API.
func (s *Server) CloseSession(sessionID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.session(sessionID); sess != nil {
		sess.Active = false
	}
}

// Token issues a valid token for u.
func (s *Server) Token(u *User, ttl time.Duration) string {
	tok, err := IssueToken(signingKey, u.ID, u.Role, s.now(), ttl)
	if err != nil {
		panic(err)
	}
	return tok
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// Participants returns the number of students who joined a session.
func (s *Server) Participants(sessionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.session(sessionID); sess != nil {
		return len(sess.Joined)
	}
	return 0
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[c.Request.URL.Path]++
		delay := s.Delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		c.Next()
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"basarili": false, "hata": msg})
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenStr == "" {
			fail(c, http.StatusUnauthorized, "Token gerekli")
			return
		}
		claims, err := parseToken(tokenStr, signingKey)
		if err != nil {
			fail(c, http.StatusUnauthorized, "Geçersiz veya süresi dolmuş token")
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

func (s *Server) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsOf(c).Role != role {
			fail(c, http.StatusForbidden, "Yetkisiz erişim")
			return
		}
		c.Next()
	}
}

func claimsOf(c *gin.Context) Claims {
	v, _ := c.Get("claims")
	claims, _ := v.(Claims)
	return claims
}

func (s *Server) user(id int64) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Server) course(id int64) *Course {
	for _, c := range s.courses {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) session(id int64) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func userJSON(u *User) gin.H {
	return gin.H{"id": u.ID, "email": u.Email, "ad_soyad": u.Name, "rol": u.Role, "yuz_var": u.HasFace}
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Sifre string `json:"sifre"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Sifre == "" {
		fail(c, http.StatusBadRequest, "Email ve şifre gerekli")
		return
	}
	s.mu.Lock()
	var found *User
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(req.Email)) {
			found = u
		}
	}
	s.mu.Unlock()
	if found == nil || found.Password != req.Sifre {
		fail(c, http.StatusUnauthorized, "Email veya şifre hatalı")
		return
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "token": s.Token(found, 24*time.Hour), "kullanici": userJSON(found)})
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(claimsOf(c).UserID)
	if u == nil {
		fail(c, http.StatusNotFound, "Kullanıcı bulunamadı")
		return
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "kullanici": userJSON(u)})
}

func (s *Server) activeFor(courseID int64) *Session {
	for _, sess := range s.sessions {
		if sess.CourseID == courseID && sess.Active {
			return sess
		}
	}
	return nil
}

func (s *Server) teacherCourses(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teacherID := claimsOf(c).UserID
	out := []gin.H{}
	for _, course := range s.courses {
		if course.TeacherID != teacherID {
			continue
		}
		out = append(out, gin.H{
			"id":             course.ID,
			"ad":             course.Name,
			"kod":            course.Code,
			"ogrenci_sayisi": len(course.Enrolled),
			"aktif_oturum":   s.activeFor(course.ID) != nil,
		})
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "dersler": out})
}

func (s *Server) studentCourses(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	studentID := claimsOf(c).UserID
	out := []gin.H{}
	for _, course := range s.courses {
		if !enrolled(course, studentID) {
			continue
		}
		teacherName := ""
		if t := s.user(course.TeacherID); t != nil {
			teacherName = t.Name
		}
		out = append(out, gin.H{"id": course.ID, "ad": course.Name, "kod": course.Code, "ogretmen_adi": teacherName})
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "dersler": out})
}

func enrolled(course *Course, userID int64) bool {
	for _, id := range course.Enrolled {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Server) startAttendance(c *gin.Context) {
	var req struct {
		DersID int64 `json:"ders_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DersID == 0 {
		fail(c, http.StatusBadRequest, "Ders ID gerekli")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	course := s.course(req.DersID)
	if course == nil || course.TeacherID != claimsOf(c).UserID {
		fail(c, http.StatusForbidden, "Bu ders size ait değil")
		return
	}
	if s.activeFor(course.ID) != nil {
		fail(c, http.StatusBadRequest, "Bu dersin zaten aktif bir yoklaması var")
		return
	}
	sess := &Session{ID: s.id(), CourseID: course.ID, Active: true, Started: s.now()}
	s.sessions = append(s.sessions, sess)
	c.JSON(http.StatusOK, gin.H{"basarili": true, "mesaj": course.Name + " için yoklama başlatıldı", "oturum_id": sess.ID})
}

func (s *Server) endAttendance(c *gin.Context) {
	var req struct {
		OturumID int64 `json:"oturum_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OturumID == 0 {
		fail(c, http.StatusBadRequest, "Oturum ID gerekli")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(req.OturumID)
	if sess == nil || !sess.Active {
		fail(c, http.StatusNotFound, "Aktif oturum bulunamadı")
		return
	}
	course := s.course(sess.CourseID)
	if course == nil || course.TeacherID != claimsOf(c).UserID {
		fail(c, http.StatusNotFound, "Aktif oturum bulunamadı")
		return
	}
	sess.Active = false
	c.JSON(http.StatusOK, gin.H{"basarili": true, "mesaj": course.Name + " yoklaması bitirildi", "katilimci_sayisi": len(sess.Joined)})
}

func (s *Server) activeSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teacherID := claimsOf(c).UserID
	for _, sess := range s.sessions {
		course := s.course(sess.CourseID)
		if !sess.Active || course == nil || course.TeacherID != teacherID {
			continue
		}
		participants := []gin.H{}
		for i := len(sess.Joined) - 1; i >= 0; i-- {
			j := sess.Joined[i]
			name := ""
			if u := s.user(j.UserID); u != nil {
				name = u.Name
			}
			participants = append(participants, gin.H{"ad_soyad": name, "saat": j.At.Format("15:04"), "yuz_dogrulandi": true})
		}
		c.JSON(http.StatusOK, gin.H{"basarili": true, "aktif_oturum": gin.H{
			"oturum_id":        sess.ID,
			"ders_id":          course.ID,
			"ders_adi":         course.Name,
			"baslangic":        sess.Started.Format("2006-01-02T15:04:05"),
			"katilimci_sayisi": len(sess.Joined),
			"katilimcilar":     participants,
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "aktif_oturum": nil})
}

func (s *Server) studentSessions(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	studentID := claimsOf(c).UserID
	out := []gin.H{}
	for _, sess := range s.sessions {
		course := s.course(sess.CourseID)
		if !sess.Active || course == nil || !enrolled(course, studentID) {
			continue
		}
		teacherName := ""
		if t := s.user(course.TeacherID); t != nil {
			teacherName = t.Name
		}
		out = append(out, gin.H{
			"oturum_id":    sess.ID,
			"ders_id":      course.ID,
			"ders_adi":     course.Name,
			"ders_kodu":    course.Code,
			"ogretmen_adi": teacherName,
			"baslangic":    sess.Started.Format("2006-01-02T15:04:05"),
			"katildi":      joined(sess, studentID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "yoklamalar": out})
}

func joined(sess *Session, userID int64) bool {
	for _, j := range sess.Joined {
		if j.UserID == userID {
			return true
		}
	}
	return false
}

func readUpload(c *gin.Context, field string) ([]byte, bool) {
	file, _, err := c.Request.FormFile(field)
	if err != nil {
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (s *Server) joinSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.PostForm("oturum_id"), 10, 64)
	if err != nil || sessionID == 0 {
		fail(c, http.StatusBadRequest, "Oturum ID gerekli")
		return
	}
	image, ok := readUpload(c, "image")
	if !ok {
		fail(c, http.StatusBadRequest, "Yüz resmi gerekli")
		return
	}
	studentID := claimsOf(c).UserID

	s.mu.Lock()
	sess := s.session(sessionID)
	var course *Course
	if sess != nil {
		course = s.course(sess.CourseID)
	}
	if sess == nil || !sess.Active || course == nil || !enrolled(course, studentID) {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Aktif oturum bulunamadı veya bu derse kayıtlı değilsiniz")
		return
	}
	if joined(sess, studentID) {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "Bu yoklamaya zaten katıldınız")
		return
	}
	if u := s.user(studentID); u == nil || !u.HasFace {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "Yüzünüz kayıtlı değil. Önce yüz kaydı yapın.")
		return
	}
	decide := s.Join
	s.mu.Unlock()

	msg := ""
	if decide != nil {
		var accepted bool
		accepted, msg = decide(studentID, sessionID, image)
		if !accepted {
			fail(c, http.StatusBadRequest, msg)
			return
		}
	}
	if msg == "" {
		msg = course.Name + " yoklamasına katıldınız!"
	}

	s.mu.Lock()
	sess.Joined = append(sess.Joined, Join{UserID: studentID, At: s.now()})
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"basarili": true, "mesaj": msg, "guven_orani": 87.5})
}

func (s *Server) registerFace(c *gin.Context) {
	if _, ok := readUpload(c, "resim"); !ok {
		fail(c, http.StatusBadRequest, "Resim dosyası gerekli")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.user(claimsOf(c).UserID); u != nil {
		u.HasFace = true
	}
	c.JSON(http.StatusOK, gin.H{"basarili": true, "mesaj": "Yüz başarıyla kaydedildi"})
}
