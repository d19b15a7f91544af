package generator

import "fmt"

// defaultImagePrompt 在商品描述为空时兜底。
const defaultImagePrompt = "生成商品图片"

// BuildInstruction 把四个表单字段拼成发给文案机器人的指令。
func BuildInstruction(form Form) string {
	return fmt.Sprintf("文案描述: %s, 商品核心卖点: %s, 商品适用人群: %s, 笔记生成需求： %s",
		form.ProductInfo, form.SellingPoints, form.TargetAudience, form.ContentType)
}

// BuildImagePrompt 返回发给图片机器人的文字提示。
func BuildImagePrompt(form Form) string {
	if form.ProductInfo == "" {
		return defaultImagePrompt
	}
	return form.ProductInfo
}
