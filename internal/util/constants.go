package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 生成资料的类型
const (
	MaterialKindStudyGuide   = "study_guide"
	MaterialKindTopicSummary = "topic_summary"
	MaterialKindExerciseSet  = "exercise_set"
)
