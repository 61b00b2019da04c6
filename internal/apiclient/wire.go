package apiclient

import (
	"strings"
	"time"

	"rollcall/internal/model"
)

// Field names below match the deployed server exactly.

type envelope struct {
	Basarili bool   `json:"basarili"`
	Hata     string `json:"hata"`
}

func (e envelope) result() (bool, string) { return e.Basarili, e.Hata }

type wireUser struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	AdSoyad string `json:"ad_soyad"`
	Rol     string `json:"rol"`
	YuzVar  bool   `json:"yuz_var"`
}

func (u wireUser) actor() model.Actor {
	return model.Actor{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.AdSoyad,
		Role:        roleFromWire(u.Rol),
		HasFace:     u.YuzVar,
	}
}

func roleFromWire(rol string) model.Role {
	switch rol {
	case "ogrenci":
		return model.RoleStudent
	case "ogretmen":
		return model.RoleTeacher
	case "admin":
		return model.RoleAdmin
	default:
		return model.Role(rol)
	}
}

type loginRequest struct {
	Email string `json:"email"`
	Sifre string `json:"sifre"`
}

type loginResponse struct {
	envelope
	Token     string   `json:"token"`
	Kullanici wireUser `json:"kullanici"`
}

type meResponse struct {
	envelope
	Kullanici wireUser `json:"kullanici"`
}

type wireCourse struct {
	ID            int64  `json:"id"`
	Ad            string `json:"ad"`
	Kod           string `json:"kod"`
	OgrenciSayisi int    `json:"ogrenci_sayisi"`
	AktifOturum   bool   `json:"aktif_oturum"`
	OgretmenAdi   string `json:"ogretmen_adi"`
}

func (c wireCourse) course() model.Course {
	return model.Course{
		ID:               c.ID,
		Name:             c.Ad,
		Code:             c.Kod,
		EnrolledCount:    c.OgrenciSayisi,
		HasActiveSession: c.AktifOturum,
		TeacherName:      c.OgretmenAdi,
	}
}

type coursesResponse struct {
	envelope
	Dersler []wireCourse `json:"dersler"`
}

type startRequest struct {
	DersID int64 `json:"ders_id"`
}

type startResponse struct {
	envelope
	Mesaj    string `json:"mesaj"`
	OturumID int64  `json:"oturum_id"`
}

type endRequest struct {
	OturumID int64 `json:"oturum_id"`
}

type endResponse struct {
	envelope
	Mesaj           string `json:"mesaj"`
	KatilimciSayisi int    `json:"katilimci_sayisi"`
}

type wireParticipant struct {
	AdSoyad       string `json:"ad_soyad"`
	Saat          string `json:"saat"`
	YuzDogrulandi bool   `json:"yuz_dogrulandi"`
}

type wireActiveSession struct {
	OturumID        int64             `json:"oturum_id"`
	DersID          int64             `json:"ders_id"`
	DersAdi         string            `json:"ders_adi"`
	Baslangic       string            `json:"baslangic"`
	KatilimciSayisi int               `json:"katilimci_sayisi"`
	Katilimcilar    []wireParticipant `json:"katilimcilar"`
}

func (s wireActiveSession) session() model.Session {
	out := model.Session{
		ID:               s.OturumID,
		CourseID:         s.DersID,
		CourseName:       s.DersAdi,
		StartedAt:        parseTime(s.Baslangic),
		Active:           true,
		ParticipantCount: s.KatilimciSayisi,
		Participants:     make([]model.Participant, 0, len(s.Katilimcilar)),
	}
	for _, p := range s.Katilimcilar {
		out.Participants = append(out.Participants, model.Participant{
			Name:         p.AdSoyad,
			JoinedAt:     p.Saat,
			FaceVerified: p.YuzDogrulandi,
		})
	}
	return out
}

type activeResponse struct {
	envelope
	AktifOturum *wireActiveSession `json:"aktif_oturum"`
}

type wireMembership struct {
	OturumID    int64  `json:"oturum_id"`
	DersID      int64  `json:"ders_id"`
	DersAdi     string `json:"ders_adi"`
	DersKodu    string `json:"ders_kodu"`
	OgretmenAdi string `json:"ogretmen_adi"`
	Baslangic   string `json:"baslangic"`
	Katildi     bool   `json:"katildi"`
}

func (m wireMembership) membership() model.Membership {
	return model.Membership{
		SessionID:   m.OturumID,
		CourseID:    m.DersID,
		CourseName:  m.DersAdi,
		CourseCode:  m.DersKodu,
		TeacherName: m.OgretmenAdi,
		StartedAt:   parseTime(m.Baslangic),
		HasJoined:   m.Katildi,
	}
}

type sessionsResponse struct {
	envelope
	Yoklamalar []wireMembership `json:"yoklamalar"`
}

type joinResponse struct {
	envelope
	Mesaj      string  `json:"mesaj"`
	GuvenOrani float64 `json:"guven_orani"`
}

type messageResponse struct {
	envelope
	Mesaj string `json:"mesaj"`
}

type infoResponse struct {
	Durum    string `json:"durum"`
	Mesaj    string `json:"mesaj"`
	Versiyon string `json:"versiyon"`
}

// The server emits naive ISO timestamps from MySQL DATETIME columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
