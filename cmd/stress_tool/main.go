package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"

	catalogModel "course_checkout/internal/domain/catalog/model"
	couponModel "course_checkout/internal/domain/coupon/model"
	couponService "course_checkout/internal/domain/coupon/service"
	"course_checkout/internal/domain/payment/model"
	"course_checkout/internal/pkg/config"
	"course_checkout/pkg/database"
	"course_checkout/pkg/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

// 压测：N 个买家用同一张限量优惠券下单，并发提交结算回调 (每单额外重复提交 dup 次)
// 结束后校验 used_count <= max_uses，且每个 paid 订单恰好对应一条授权
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "service base url")
	buyers := flag.Int("buyers", 1000, "number of buyers racing for the coupon")
	maxUses := flag.Int("max-uses", 5, "coupon max uses")
	dup := flag.Int("dup", 1, "extra duplicate callbacks per order")
	flag.Parse()

	config.LoadConfig()
	cfg := config.GlobalConfig
	db, err := database.InitDatabase(cfg.Database, false, zap.NewNop())
	if err != nil {
		panic(err)
	}
	signer := security.NewSignatureVerifier(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	// 1. 准备数据 (直接写库，绕过网关下单)
	runID := uuid.NewString()[:8]
	course, coupon := seed(db, runID, *maxUses)
	orders := seedOrders(db, runID, course, coupon, *buyers)

	fmt.Printf("开始压测：%d 个买家抢 %d 个优惠名额 (coupon %s)，每单重复回调 %d 次...\n",
		*buyers, *maxUses, coupon.Code, *dup)

	// 2. 并发结算
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	start := time.Now()
	for i, o := range orders {
		for k := 0; k <= *dup; k++ {
			wg.Add(1)
			go func(gwOrderID, paymentID string) {
				defer wg.Done()
				status := settle(*baseURL, gwOrderID, paymentID, signer.Sign(gwOrderID, paymentID))
				mu.Lock()
				statuses[status]++
				mu.Unlock()
			}(o.GatewayID(), fmt.Sprintf("pay_%s_%d", runID, i))
		}
	}
	wg.Wait()
	duration := time.Since(start)
	total := len(orders) * (*dup + 1)

	// 3. 校验不变式
	var stored couponModel.Coupon
	db.First(&stored, "id = ?", coupon.ID)
	var paid, enrollments int64
	db.Model(&model.Order{}).Where("course_id = ? AND status = ?", course.ID, model.OrderStatusPaid).Count(&paid)
	db.Table("enrollments").Where("course_id = ?", course.ID).Count(&enrollments)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d, QPS: %.2f\n", total, float64(total)/duration.Seconds())
	for status, n := range statuses {
		fmt.Printf("HTTP %d: %d\n", status, n)
	}
	fmt.Printf("优惠券使用: %d / %d\n", stored.UsedCount, stored.MaxUses)
	fmt.Printf("已支付订单: %d, 授权: %d\n", paid, enrollments)
	if stored.UsedCount > stored.MaxUses || paid != enrollments {
		fmt.Println("不变式被破坏!")
	} else {
		fmt.Println("不变式成立")
	}
	fmt.Println("--------------------------------------------------")
}

func seed(db *gorm.DB, runID string, maxUses int) (*catalogModel.Course, *couponModel.Coupon) {
	course := &catalogModel.Course{
		Title:     "stress-" + runID,
		Price:     10000,
		Currency:  config.GlobalConfig.Gateway.Currency,
		Published: true,
		OwnerID:   uuid.NewString(),
	}
	if err := db.Create(course).Error; err != nil {
		panic(err)
	}
	courseID := course.ID
	coupon := &couponModel.Coupon{
		Code:          "STRESS" + runID,
		DiscountType:  couponModel.DiscountTypePercent,
		DiscountValue: 20,
		MaxUses:       maxUses,
		PerUserLimit:  1,
		CourseID:      &courseID,
		ValidFrom:     time.Now().Add(-time.Minute),
		Active:        true,
	}
	coupon.Code = couponService.NormalizeCode(coupon.Code)
	if err := db.Create(coupon).Error; err != nil {
		panic(err)
	}
	return course, coupon
}

func seedOrders(db *gorm.DB, runID string, course *catalogModel.Course, coupon *couponModel.Coupon, n int) []*model.Order {
	discount, final := couponService.ApplyDiscount(coupon.DiscountType, coupon.DiscountValue, course.Price, config.GlobalConfig.Pricing.MinFinalAmount)
	orders := make([]*model.Order, 0, n)
	for i := 0; i < n; i++ {
		gwID := fmt.Sprintf("order_%s_%d", runID, i)
		couponID := coupon.ID
		orders = append(orders, &model.Order{
			GatewayOrderID: &gwID,
			CourseID:       course.ID,
			UserID:         uuid.NewString(),
			Currency:       course.Currency,
			BaseAmount:     course.Price,
			DiscountAmount: discount,
			Amount:         final,
			CouponID:       &couponID,
			Status:         model.OrderStatusCreated,
		})
	}
	if err := db.CreateInBatches(orders, 500).Error; err != nil {
		panic(err)
	}
	return orders
}

func settle(baseURL, gwOrderID, paymentID, signature string) int {
	body, _ := json.Marshal(map[string]string{
		"gateway_order_id":   gwOrderID,
		"gateway_payment_id": paymentID,
		"signature":          signature,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/payment/settle", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
