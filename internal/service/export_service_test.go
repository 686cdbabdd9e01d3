package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campuskit/academics-api/internal/models"
)

func assertSingleByteSafe(t *testing.T, s string) {
	t.Helper()
	for _, r := range s {
		assert.LessOrEqual(t, r, rune(255), "rune %q does not survive the core-font encoding", r)
	}
}

func TestGradeSheetSubtitleStaysSingleByte(t *testing.T) {
	subtitle := gradeSheetSubtitle(&models.SectionDetail{
		Section:       models.Section{ReferenceCode: "MAT-101-A-2026-B1"},
		CourseNameEs:  "Matemática I",
		ProfessorName: "Prof. García",
	})

	assert.Equal(t, "Matemática I - MAT-101-A-2026-B1 - Prof. García", subtitle)
	assertSingleByteSafe(t, subtitle)
}

func TestTranscriptSubtitleStaysSingleByte(t *testing.T) {
	subtitle := transcriptSubtitle("Ana López", "STU-001", 3.5)

	assert.Equal(t, "Ana López (STU-001) - GPA 3.50", subtitle)
	assertSingleByteSafe(t, subtitle)
}
