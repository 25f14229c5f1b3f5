package loanapi

const (
	// 認証
	endpointChangePassword = "/auth/change-password" // PUT

	// ダッシュボード
	endpointDashboardMetrics = "/dashboard/metrics" // GET
	endpointDashboardTrends  = "/dashboard/trends"  // GET ?months=
	endpointDashboardSummary = "/dashboard/summary" // GET

	// 顧客
	endpointCustomers          = "/customers"                 // GET ?limit=, POST
	endpointCustomerByID       = "/customers/%d"              // GET
	endpointCustomerSearch     = "/customers/search"          // GET ?q=
	endpointCustomerByIDNumber = "/customers/by-id-number/%s" // GET
	endpointCustomerCheck      = "/customers/check"           // POST

	// ローン
	endpointLoans         = "/loans"                 // POST
	endpointLoansActive   = "/loans/active"          // GET ?q=
	endpointLoanByID      = "/loans/%d"              // GET, PATCH
	endpointLoanGuarantor = "/loans/%d/guarantor/%d" // PATCH

	// 返済
	endpointPayments = "/payments" // POST

	// 延滞（旧 /aliases）
	endpointOverdues            = "/arrears"                 // GET ?only_active=&limit=
	endpointOverdueInstallments = "/arrears/%d/installments" // POST
	endpointOverdueClear        = "/arrears/%d/clear"        // POST

	// レポート
	endpointSummaryReport = "/reports/summary/pdf" // GET ?months=
)
