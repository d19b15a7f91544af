package generator

import "errors"

// 面向用户展示的错误。文案与前端一致，直接透传给页面。
var (
	ErrContentTypeRequired = errors.New("请选择内容类型")
	ErrTooManyImages       = errors.New("最多只能上传9张图片")
	ErrNoImages            = errors.New("没有可用的图片")
	ErrAllUploadsFailed    = errors.New("所有图片上传失败，请重试或更换图片")
	ErrNoImagesProduced    = errors.New("未能生成新的图片")

	// ErrBusy rejects a run while an equivalent one is already in flight.
	ErrBusy = errors.New("当前正在生成中，请稍候")
)
