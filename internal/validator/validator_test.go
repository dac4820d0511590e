package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

type courseReq struct {
	CourseCode string `json:"courseCode" binding:"required,course_code"`
	Duration   int    `json:"duration" binding:"required,min=1"`
}

func bind(body string) map[string]string {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req courseReq
	return Bind(c, &req)
}

func TestCourseCode(t *testing.T) {
	tests := []struct {
		code string
		ok   bool
	}{
		{"CS-101", true},
		{"MATH-2040", true},
		{"cs-101", true},
		{"CS101", false},
		{"C-101", false},
		{"CS-10", false},
		{"CSCIX-101", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fields := bind(`{"courseCode":"` + tt.code + `","duration":5}`)
			if tt.ok && fields != nil {
				t.Fatalf("rejected: %v", fields)
			}
			if !tt.ok && !strings.Contains(fields["courseCode"], "CS-101") {
				t.Fatalf("fields = %v", fields)
			}
		})
	}
}

func TestBindUsesJSONNamesAndTranslations(t *testing.T) {
	fields := bind(`{"courseCode":"CS-101"}`)
	if msg := fields["duration"]; msg != "duration is a required field" {
		t.Errorf("duration message = %q (%v)", msg, fields)
	}

	fields = bind(`{"courseCode":`)
	if _, ok := fields["detail"]; !ok {
		t.Errorf("syntax error fields = %v", fields)
	}
}
