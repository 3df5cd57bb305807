package model

// MaterialStatus 学习资料生成任务状态。generating 是唯一的非终态，
// 终态（available / error）只写一次，存储指针只随终态一起写入。
type MaterialStatus string

const (
	MaterialGenerating MaterialStatus = "generating"
	MaterialAvailable  MaterialStatus = "available"
	MaterialError      MaterialStatus = "error"
)

func (s MaterialStatus) Terminal() bool {
	return s == MaterialAvailable || s == MaterialError
}

// GeneratedMaterial 后台生成的长篇学习资料。正文在对象存储中，
// 数据库只持有指针和状态。
// swagger:model GeneratedMaterial
type GeneratedMaterial struct {
	UUIDBase
	Kind       string         `gorm:"size:50;not null" json:"kind"` // study_guide / topic_summary …
	Subject    string         `gorm:"size:100" json:"subject"`
	Level      string         `gorm:"size:50" json:"level"`
	Topics     string         `gorm:"size:1000" json:"topics"`
	Title      string         `gorm:"size:255" json:"title"`
	Status     MaterialStatus `gorm:"size:20;default:'generating'" json:"status"`
	StorageKey string         `gorm:"size:500" json:"storageKey,omitempty"` // 仅成功时写入
	ErrorMsg   string         `gorm:"type:text" json:"errorMsg,omitempty"`  // 仅失败时写入
	CreatorID  uint           `gorm:"index;type:bigint unsigned" json:"creatorId"`
}

func (GeneratedMaterial) TableName() string {
	return "generated_materials"
}

// TopicList 资料覆盖的知识点
func (m *GeneratedMaterial) TopicList() []string {
	return SplitTopics(m.Topics)
}
