package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotPublished   = errors.New("exam not published or not accessible")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrMaterialNotFound   = errors.New("material not found")

	// ErrInvalidTransition 非法的状态迁移，返回给调用方的客户端错误，不重试
	ErrInvalidTransition = errors.New("invalid status transition")
)

// GenerationError 内容生成失败：模型返回了不可用的输出或调用超时
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return "generation failed (" + e.Stage + "): " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func NewGenerationError(stage string, err error) *GenerationError {
	return &GenerationError{Stage: stage, Err: err}
}

// IsGenerationError 判断是否为内容生成失败
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// TransientStorageError 存储层的瞬时失败，调用方可以有界重试
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return "transient storage error (" + e.Op + "): " + e.Err.Error()
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

func NewTransientStorageError(op string, err error) *TransientStorageError {
	return &TransientStorageError{Op: op, Err: err}
}

// IsTransientStorageError 判断是否为可重试的存储失败
func IsTransientStorageError(err error) bool {
	var te *TransientStorageError
	return errors.As(err, &te)
}
