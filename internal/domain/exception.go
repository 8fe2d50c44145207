package domain

// ExceptionRule 描述一个已知“目录不一致”的电影修正规则。
//
// 这些规则是配置数据而不是逻辑：来源无法一般化，只能逐条登记。
//   - 当标题（不区分大小写）等于 Title，且候选里存在 RequireID、缺少 AddID 时，补上 AddID。
//   - Variants 非空时直接使用这些固定变体，跳过站点搜索。
type ExceptionRule struct {
	Title     string
	RequireID int
	AddID     int
	Quality   string
	Variants  []StreamVariant
}
