package gov

// Built-in records for well-known villages. These answer when the platform
// is unconfigured or unreachable.
var mockDatabase = map[string]*Record{
	"西递村": {
		Name:     "西递村",
		Province: "安徽省",
		City:     "黄山市",
		District: "黟县",
		Category: "传统村落",
		Features: []string{"徽派建筑", "世界文化遗产", "明清古村"},
		Heritage: &CulturalHeritage{
			Architecture: "徽派建筑群，以马头墙、青砖黛瓦为特色",
			History:      "始建于北宋，距今已有近千年历史",
			Culture:      "徽商文化、耕读文化",
		},
	},
	"宏村": {
		Name:     "宏村",
		Province: "安徽省",
		City:     "黄山市",
		District: "黟县",
		Category: "传统村落",
		Features: []string{"徽派建筑", "世界文化遗产", "牛形村落"},
		Heritage: &CulturalHeritage{
			Architecture: "独特的牛形村落布局，水系完善",
			History:      "始建于南宋，距今约900年历史",
			Culture:      "徽商文化、风水文化",
		},
	},
}

func mockRecord(name string) *Record {
	if rec, ok := mockDatabase[name]; ok {
		cp := *rec
		cp.Source = "mock_database"
		return &cp
	}
	return &Record{
		Name:     name,
		Province: "未知",
		Category: "传统村落",
		Features: []string{"地方特色", "文化传承"},
		Note:     "这是Mock数据，实际数据需要配置政府API密钥",
		Source:   "mock_database",
	}
}
