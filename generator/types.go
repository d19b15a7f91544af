package generator

// ContentType 是笔记的生成需求类型。
type ContentType string

const (
	TypeRecommendation ContentType = "recommendation" // 好物推荐
	TypeGuide          ContentType = "guide"          // 攻略教程
	TypeReview         ContentType = "review"         // 产品测评
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case TypeRecommendation, TypeGuide, TypeReview:
		return true
	}
	return false
}

// MaxImages 一次最多允许上传的商品图数量。
const MaxImages = 9

// Image is one user-supplied product image.
type Image struct {
	Name string
	Data []byte
}

// Form 是用户在表单里填写的全部输入。
type Form struct {
	Images         []Image
	ContentType    ContentType
	ProductInfo    string
	SellingPoints  string
	TargetAudience string
}

// Validate 校验表单：内容类型必选，图片数量不超过上限。
func (f Form) Validate() error {
	if !f.ContentType.Valid() {
		return ErrContentTypeRequired
	}
	if len(f.Images) > MaxImages {
		return ErrTooManyImages
	}
	return nil
}

// Note 是一次生成的展示结果。每次成功的生成整体覆盖相应字段：
// 标题和正文总是一并写入，图片集合整体替换。
type Note struct {
	Title  string
	Body   string
	Images []string
}
