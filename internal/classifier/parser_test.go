package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qawatch/qawatch/internal/types"
)

func TestParseQuestionVerdict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    QuestionVerdict
		wantErr bool
	}{
		{
			name:  "bare json",
			input: `{"is_question": true, "confidence": 0.92, "question_type": "direct"}`,
			want:  QuestionVerdict{IsQuestion: true, Confidence: 0.92, Type: QuestionDirect},
		},
		{
			name: "code fence",
			input: "```json\n" +
				`{"is_question": true, "confidence": 0.8, "question_type": "implicit"}` +
				"\n```",
			want: QuestionVerdict{IsQuestion: true, Confidence: 0.8, Type: QuestionImplicit},
		},
		{
			name:  "surrounding prose",
			input: `Here is my analysis: {"is_question": false, "confidence": 0.3, "question_type": "none"} Hope that helps!`,
			want:  QuestionVerdict{Confidence: 0.3, Type: QuestionNone},
		},
		{
			name:  "trailing comma",
			input: `Sure: {"is_question": true, "confidence": 0.75, "question_type": "help_request",}`,
			want:  QuestionVerdict{IsQuestion: true, Confidence: 0.75, Type: QuestionHelpRequest},
		},
		{
			name:    "no json at all",
			input:   "I cannot classify this message.",
			wantErr: true,
		},
		{
			name:    "empty response",
			input:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[QuestionVerdict](tt.input, "test")
			if tt.wantErr {
				assert.False(t, result.Success)
				assert.NotEmpty(t, result.Error)
				return
			}
			assert.True(t, result.Success, result.Error)
			assert.Equal(t, tt.want, result.Data)
		})
	}
}

func TestParseAnswerVerdict(t *testing.T) {
	result := Parse[AnswerVerdict](
		`{"is_answer": true, "confidence": 0.66, "answer_quality": "partial"}`, "test")
	assert.True(t, result.Success)
	assert.Equal(t, AnswerVerdict{IsAnswer: true, Confidence: 0.66, Quality: types.QualityPartial}, result.Data)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(-0.5))
	assert.Equal(t, 1.0, clampConfidence(1.5))
	assert.Equal(t, 0.7, clampConfidence(0.7))
}
