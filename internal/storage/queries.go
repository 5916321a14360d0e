package storage

// Timestamps are stored as unix milliseconds. Calendar columns (year, month,
// day) hold the UTC date of occurred_at and key the history buckets.
const (
	insertCategory = `
INSERT INTO categories (owner, name, icon, type, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner, name, type) DO NOTHING`

	getCategory = `
SELECT name, icon, type, created_at FROM categories
WHERE owner = ? AND name = ? AND type = ?`

	listCategories = `
SELECT name, icon, type, created_at FROM categories
WHERE owner = ? AND (? = '' OR type = ?)
ORDER BY name, type`

	deleteCategory = `
DELETE FROM categories
WHERE owner = ? AND name = ? AND type = ?
RETURNING name, icon, type, created_at`

	categoryExists = `
SELECT 1 FROM categories WHERE owner = ? AND name = ? AND type = ?`

	transactionByIdempotencyKey = `
SELECT id FROM transactions WHERE owner = ? AND idempotency_key = ?`

	insertTransaction = `
INSERT INTO transactions (
    id, owner, amount_cents, description, occurred_at, year, month, day,
    type, category, category_icon, idempotency_key, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	transactionColumns = `
id, owner, amount_cents, description, occurred_at, type, category, category_icon, created_at, updated_at`

	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND owner = ?`

	listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE owner = ? AND occurred_at >= ? AND occurred_at < ?
ORDER BY occurred_at DESC, created_at DESC`

	deleteTransaction = `DELETE FROM transactions WHERE id = ? AND owner = ?`

	// An addition past the int64 range leaves the row alone and affects
	// zero rows.
	upsertDayHistory = `
INSERT INTO day_history (owner, year, month, day, income, expense)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner, year, month, day) DO UPDATE SET
    income = income + excluded.income,
    expense = expense + excluded.expense
WHERE income <= 9223372036854775807 - excluded.income
  AND expense <= 9223372036854775807 - excluded.expense`

	upsertMonthHistory = `
INSERT INTO month_history (owner, year, month, income, expense)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner, year, month) DO UPDATE SET
    income = income + excluded.income,
    expense = expense + excluded.expense
WHERE income <= 9223372036854775807 - excluded.income
  AND expense <= 9223372036854775807 - excluded.expense`

	// The guards turn a subtraction below zero into zero affected rows.
	subtractDayHistory = `
UPDATE day_history SET income = income - ?1, expense = expense - ?2
WHERE owner = ?3 AND year = ?4 AND month = ?5 AND day = ?6
  AND income >= ?1 AND expense >= ?2`

	subtractMonthHistory = `
UPDATE month_history SET income = income - ?1, expense = expense - ?2
WHERE owner = ?3 AND year = ?4 AND month = ?5
  AND income >= ?1 AND expense >= ?2`

	balance = `
SELECT
    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
FROM transactions
WHERE owner = ? AND occurred_at >= ? AND occurred_at < ?`

	categoryTotals = `
SELECT type, category, category_icon, SUM(amount_cents) AS total
FROM transactions
WHERE owner = ? AND occurred_at >= ? AND occurred_at < ?
GROUP BY type, category, category_icon
ORDER BY total DESC, type, category, category_icon`

	dayHistory = `
SELECT day, income, expense FROM day_history
WHERE owner = ? AND year = ? AND month = ?
ORDER BY day`

	monthHistory = `
SELECT month, income, expense FROM month_history
WHERE owner = ? AND year = ?
ORDER BY month`

	historyYears = `
SELECT DISTINCT year FROM month_history WHERE owner = ? ORDER BY year`

	storedDayTotals = `
SELECT income, expense FROM day_history
WHERE owner = ? AND year = ? AND month = ? AND day = ?`

	storedMonthTotals = `
SELECT income, expense FROM month_history
WHERE owner = ? AND year = ? AND month = ?`

	liveTotals = `
SELECT
    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
FROM transactions
WHERE owner = ?1 AND year = ?2 AND month = ?3 AND (?4 = 0 OR day = ?4)`

	owners = `
SELECT owner FROM categories
UNION SELECT owner FROM transactions
UNION SELECT owner FROM day_history
UNION SELECT owner FROM month_history
UNION SELECT owner FROM user_settings
ORDER BY owner`

	activeDays = `
SELECT year, month, day FROM transactions WHERE owner = ?1
UNION SELECT year, month, day FROM day_history WHERE owner = ?1
ORDER BY 1, 2, 3`

	activeMonths = `
SELECT year, month FROM transactions WHERE owner = ?1
UNION SELECT year, month FROM day_history WHERE owner = ?1
UNION SELECT year, month FROM month_history WHERE owner = ?1
ORDER BY 1, 2`

	clearDayHistory   = `DELETE FROM day_history WHERE owner = ?`
	clearMonthHistory = `DELETE FROM month_history WHERE owner = ?`

	rebuildDayHistory = `
INSERT INTO day_history (owner, year, month, day, income, expense)
SELECT owner, year, month, day,
    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
FROM transactions WHERE owner = ?
GROUP BY owner, year, month, day`

	rebuildMonthHistory = `
INSERT INTO month_history (owner, year, month, income, expense)
SELECT owner, year, month,
    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
FROM transactions WHERE owner = ?
GROUP BY owner, year, month`

	getSettings = `
SELECT currency, created_at, updated_at FROM user_settings WHERE owner = ?`

	insertDefaultSettings = `
INSERT INTO user_settings (owner, currency, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner) DO NOTHING`

	upsertSettings = `
INSERT INTO user_settings (owner, currency, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner) DO UPDATE SET
    currency = excluded.currency,
    updated_at = excluded.updated_at`
)
