package service

import (
	"errors"
	"strings"

	"agri-ai-go/internal/model"
)

// ErrArticleNotFound 表示知识库中没有该文章
var ErrArticleNotFound = errors.New("article not found")

// KnowledgeService 提供英文知识库文章的检索。
type KnowledgeService interface {
	All() []model.Article
	List(query string) []model.Article
	Get(id int) (*model.Article, error)
	// Lookup 按给定 ID 顺序返回文章，忽略不存在的 ID
	Lookup(ids []int) []model.Article
}

type knowledgeService struct {
	articles []model.Article
}

// NewKnowledgeService 以给定文章创建知识库，articles 为空时使用内置文章。
func NewKnowledgeService(articles []model.Article) KnowledgeService {
	if len(articles) == 0 {
		articles = defaultArticles
	}
	return &knowledgeService{articles: articles}
}

func (s *knowledgeService) All() []model.Article {
	return append([]model.Article(nil), s.articles...)
}

// List 按标题或分类做不区分大小写的子串匹配，空查询返回全部
func (s *knowledgeService) List(query string) []model.Article {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.All()
	}
	var out []model.Article
	for _, a := range s.articles {
		if strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Category), q) {
			out = append(out, a)
		}
	}
	return out
}

func (s *knowledgeService) Get(id int) (*model.Article, error) {
	for i := range s.articles {
		if s.articles[i].ID == id {
			a := s.articles[i]
			return &a, nil
		}
	}
	return nil, ErrArticleNotFound
}

func (s *knowledgeService) Lookup(ids []int) []model.Article {
	out := make([]model.Article, 0, len(ids))
	for _, id := range ids {
		if a, err := s.Get(id); err == nil {
			out = append(out, *a)
		}
	}
	return out
}

var defaultArticles = []model.Article{
	{
		ID:       1,
		Title:    "Understanding Powdery Mildew",
		Category: "Fungal Diseases",
		Summary:  "A common fungal disease that affects a wide variety of plants, appearing as white powdery spots on leaves and stems.",
		Content: `Powdery mildew is easily identifiable by its white, powdery spots on the leaves and stems of affected plants. These spots can spread to cover most of the leaf surface, which can inhibit photosynthesis and weaken the plant.

Causes:
- High humidity at night and low humidity during the day.
- Poor air circulation around plants.
- Moderate temperatures (60-80°F or 15-27°C).

Management:
- Apply fungicides, either organic (like neem oil or potassium bicarbonate) or synthetic.
- Prune affected areas to improve air circulation and reduce spread.
- Ensure proper plant spacing from the outset.`,
	},
	{
		ID:       2,
		Title:    "Best Practices for Crop Rotation",
		Category: "Farming Techniques",
		Summary:  "The practice of growing a series of different types of crops in the same area across a sequence of growing seasons.",
		Content: `Crop rotation is a cornerstone of sustainable agriculture. It helps to manage soil fertility, reduce soil erosion, and control pests and diseases by breaking their life cycles.

Key Principles:
- Alternate plant families: Avoid planting crops from the same family in the same spot consecutively (e.g., tomatoes and potatoes).
- Vary rooting depths: Follow deep-rooted crops with shallow-rooted ones to utilize different soil layers.
- Incorporate legumes: Plants like beans and peas fix nitrogen in the soil, benefiting the crops that follow.`,
	},
	{
		ID:       3,
		Title:    "Identifying and Managing Aphids",
		Category: "Pest Control",
		Summary:  "Small, sap-sucking insects that can multiply rapidly, causing significant damage to plants and transmitting diseases.",
		Content: `Aphids are tiny, pear-shaped insects that cluster on new growth and the undersides of leaves. They feed on plant sap, which can lead to stunted growth, yellowing leaves, and the production of a sticky substance called honeydew.

Control Methods:
- Physical Removal: A strong jet of water can dislodge them from plants.
- Natural Predators: Encourage ladybugs, lacewings, and parasitic wasps.
- Soaps and Oils: Insecticidal soaps and horticultural oils like neem oil are effective and low-impact options.`,
	},
	{
		ID:       4,
		Title:    "The Role of Soil Health",
		Category: "Soil Management",
		Summary:  "Healthy soil is the foundation of a productive farm, providing essential nutrients, water, oxygen, and root support.",
		Content: `Healthy soil is a complex ecosystem teeming with life. Its structure and composition are critical for preventing diseases and ensuring robust plant growth.

Improving Soil Health:
- Add Organic Matter: Compost, manure, and cover crops enrich the soil.
- Minimize Tillage: No-till or low-till practices protect soil structure and microbial life.
- Keep Soil Covered: Use mulch or cover crops to prevent erosion and retain moisture.`,
	},
}
