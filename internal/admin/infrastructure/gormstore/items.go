package gormstore

import (
	"strconv"

	"gorm.io/gorm"

	"github.com/dmehra2102/storefront/internal/admin/application"
	"github.com/dmehra2102/storefront/internal/admin/domain"
)

// ItemConfig loads items with their prices and details and rewrites both sets
// on every save.
func ItemConfig() Config[domain.Item] {
	return Config[domain.Item]{
		Key:     "id",
		Order:   "id",
		Preload: []string{"Prices", "Details"},
		Filters: []string{"category_slug", "subcategory_slug", "brand_slug", "article_id"},
		SaveChildren: func(tx *gorm.DB, id string, item *domain.Item) error {
			if id != "" {
				n, err := strconv.ParseInt(id, 10, 64)
				if err != nil {
					return application.ErrNotFound
				}
				item.ID = n
			}
			if err := tx.Where("item_id = ?", item.ID).Delete(&domain.ItemPrice{}).Error; err != nil {
				return err
			}
			if err := tx.Where("item_id = ?", item.ID).Delete(&domain.ItemDetail{}).Error; err != nil {
				return err
			}
			for i := range item.Prices {
				item.Prices[i].ID = 0
				item.Prices[i].ItemID = item.ID
			}
			for i := range item.Details {
				item.Details[i].ID = 0
				item.Details[i].ItemID = item.ID
			}
			if len(item.Prices) > 0 {
				if err := tx.Create(&item.Prices).Error; err != nil {
					return err
				}
			}
			if len(item.Details) > 0 {
				if err := tx.Create(&item.Details).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
