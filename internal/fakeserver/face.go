package fakeserver

import (
	"bytes"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
)

// FaceService is an in-memory stand-in for the standalone face API. A
// recognize call matches when the uploaded bytes equal a registered sample.
type FaceService struct {
	mu      sync.Mutex
	samples []faceSample
	calls   map[string]int
	engine  *gin.Engine
}

type faceSample struct {
	name  string
	image []byte
}

// NewFaceService builds an empty face service.
func NewFaceService() *FaceService {
	gin.SetMode(gin.TestMode)
	f := &FaceService{calls: make(map[string]int)}
	r := gin.New()
	r.Use(gin.Recovery(), func(c *gin.Context) {
		f.mu.Lock()
		f.calls[c.Request.URL.Path]++
		f.mu.Unlock()
		c.Next()
	})
	r.GET("/", f.stats)
	r.POST("/register", f.register)
	r.POST("/recognize", f.recognize)
	r.GET("/list", f.list)
	r.DELETE("/delete/:name", f.remove)
	f.engine = r
	return f
}

// Handler returns the HTTP handler, for httptest.NewServer.
func (f *FaceService) Handler() http.Handler { return f.engine }

// Calls returns how many requests hit path.
func (f *FaceService) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func faceFail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// people returns the sorted distinct names and their sample counts.
func (f *FaceService) people() ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, s := range f.samples {
		counts[s.name]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, counts
}

func (f *FaceService) stats(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names, _ := f.people()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"message":          "Yuz Tanima API calisiyor",
		"registered_faces": len(f.samples),
		"unique_people":    len(names),
		"people":           names,
	})
}

func (f *FaceService) register(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		faceFail(c, http.StatusBadRequest, "Isim gerekli")
		return
	}
	image, ok := readUpload(c, "image")
	if !ok {
		faceFail(c, http.StatusBadRequest, "Resim dosyasi gerekli")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, faceSample{name: name, image: image})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": name + " basariyla kaydedildi", "total_samples": len(f.samples)})
}

func (f *FaceService) recognize(c *gin.Context) {
	f.mu.Lock()
	empty := len(f.samples) == 0
	f.mu.Unlock()
	if empty {
		faceFail(c, http.StatusBadRequest, "Kayitli yuz yok. Once yuz kaydi yapin.")
		return
	}
	image, ok := readUpload(c, "image")
	if !ok {
		faceFail(c, http.StatusBadRequest, "Resim dosyasi gerekli")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.samples {
		if bytes.Equal(s.image, image) {
			c.JSON(http.StatusOK, gin.H{
				"success":    true,
				"recognized": true,
				"name":       s.name,
				"confidence": 91.25,
				"message":    "Hosgeldin " + s.name + "!",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recognized": false, "name": nil, "message": "Yuz taninamadi"})
}

func (f *FaceService) list(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names, counts := f.people()
	people := make([]gin.H, 0, len(names))
	for _, n := range names {
		people = append(people, gin.H{"name": n, "sample_count": counts[n]})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "people": people, "total_samples": len(f.samples), "total_people": len(names)})
}

func (f *FaceService) remove(c *gin.Context) {
	name := c.Param("name")
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.samples[:0]
	removed := 0
	for _, s := range f.samples {
		if s.name == name {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	f.samples = kept
	if removed == 0 {
		faceFail(c, http.StatusNotFound, name+" bulunamadi")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": name + " silindi", "removed_samples": removed})
}
