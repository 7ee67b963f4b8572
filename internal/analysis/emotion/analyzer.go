package emotion

import (
	"strings"
)

// Label 表示面部表情识别可以给出的情绪标签。
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Surprised Label = "surprised"
	Fearful   Label = "fearful"
	Disgusted Label = "disgusted"
)

// Labels lists every label in the order the expression network reports them.
var Labels = []Label{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

// Parse 将任意大小写的字符串映射为已知标签。
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == normalized {
			return label, true
		}
	}
	return "", false
}

// Dominant returns the label with the highest score. Ties resolve to the
// label that appears first in Labels; an empty distribution yields false.
func Dominant(scores map[Label]float64) (Label, bool) {
	best := Label("")
	bestScore := -1.0
	for _, label := range Labels {
		score, ok := scores[label]
		if !ok {
			continue
		}
		if score > bestScore {
			best = label
			bestScore = score
		}
	}
	return best, best != ""
}

// Decision 给出基于文本的情绪推断结果。
type Decision struct {
	Emotion Label
	Score   int
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"开心", "高兴", "快乐", "太好了", "太棒了", "哈哈", "lol", "amazing", "awesome", "great",
		"thanks", "thank you", "love", "喜欢", "满意", "fun", "enjoy",
	},
	Sad: {
		"难过", "伤心", "失落", "沮丧", "失望", "unhappy", "sad", "depressed", "upset", "hopeless",
		"give up", "can't do this", "低落", "委屈",
	},
	Angry: {
		"生气", "愤怒", "火大", "受够了", "angry", "furious", "annoyed", "hate", "stupid", "pissed",
		"makes no sense", "抓狂",
	},
	Fearful: {
		"害怕", "担心", "紧张", "焦虑", "scared", "afraid", "worried", "nervous", "anxious", "panic",
		"exam tomorrow", "deadline",
	},
	Surprised: {
		"惊讶", "没想到", "居然", "wow", "really?", "no way", "unbelievable", "whoa", "哇",
	},
	Disgusted: {
		"恶心", "讨厌", "gross", "disgusting", "yuck", "boring",
	},
}

// scanOrder keeps ties deterministic across map iteration.
var scanOrder = []Label{Sad, Angry, Fearful, Happy, Surprised, Disgusted}

// Analyze 根据学生提问的文字推断情绪，用于摄像头不可用时的回退。
func Analyze(question string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(question))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, strings.ToLower(word)) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(question, "!"); exclamations > 1 {
		scores[Surprised] += exclamations
	}
	if questions := strings.Count(question, "?"); questions > 2 {
		// 连续追问通常意味着困惑
		scores[Fearful] += questions
	}

	best := Neutral
	bestScore := 0
	for _, label := range scanOrder {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}

	return Decision{Emotion: best, Score: bestScore}
}

// Instruction 返回针对该情绪的辅导语气提示，没有对应规则时返回空字符串。
func Instruction(label Label) string {
	switch label {
	case Sad, Angry, Fearful:
		return "The student seems stressed or confused. Your tone should be extra patient and encouraging. Break down the answer into smaller, simpler steps."
	case Neutral:
		return "The student seems disengaged. Try to make the real-world example particularly interesting or surprising to grab their attention."
	case Happy, Surprised:
		return "The student seems engaged and happy. Maintain a positive and enthusiastic tone. You can ask a follow-up question to encourage deeper thinking."
	default:
		return ""
	}
}
