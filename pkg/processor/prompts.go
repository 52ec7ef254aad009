package processor

import (
	"github.com/tmc/langchaingo/prompts"
)

var cleanPrompt = prompts.NewPromptTemplate(`Ты редактор-экстрактор. Очисти сырой текст и оставь только связный контент об основном объекте документа.

Метаданные источника:
- Домен: {{.source_domain}}
- Вес источника (0-1): {{.source_weight}}
- URL: {{.url}}

Правила:
1) Удали навигацию, списки посторонних компаний, повторяющиеся блоки реквизитов и шаблонные оговорки.
2) Оставь абзацы, которые описывают главный объект, событие или компанию.
3) Единичные идентификаторы (ИНН, ОГРН, дата регистрации, адрес) сохрани, если они помогают идентификации.
4) Пограничный фрагмент сохраняй, если вес источника не ниже 0.90 и фрагмент полезен для анализа.
5) Собери результат в один читаемый текст, ничего не добавляя от себя.

Верни только очищенный текст без заголовков, метаданных и упоминания веса.
Сырой текст:
---
{{.content}}`, []string{"source_domain", "source_weight", "url", "content"})

var relevancePrompt = prompts.NewPromptTemplate(`Определи, относится ли текст к запросу '{{.context_query}}'.
Если запрос касается рынка, конкурентов, трендов, регулирования или аналитики, тексты на эти темы считай относящимися и отвечай 'да'.

Метаданные источника:
- Домен: {{.source_domain}}
- Вес источника (0-1): {{.source_weight}}
- URL: {{.url}}
- Дата: {{.date}}

Критерии:
A) Прямое совпадение, ответ 'да': упомянуты '{{.context_query}}', его юридические или брендовые названия, сокращения и транслитерации, либо совпадают ИНН, ОГРН, адрес, учредители, принадлежащие ему проекты и бренды.
B) Косвенная связь: 'да' только если связь подтверждена фактом (партнёрство, судебное дело, общий адрес или учредитель, группа компаний, общий проект) и вес источника не ниже 0.90. Слабые намёки без явной связи: 'нет'.
C) Связи нет: 'нет'.

Ответь одним словом на русском: 'да' или 'нет'.

Текст:
---
{{.text_content}}
---`, []string{"context_query", "source_domain", "source_weight", "url", "date", "text_content"})

var chunkSummaryPrompt = prompts.NewPromptTemplate(`Ты аналитик. Сделай короткую выжимку по теме '{{.context_query}}' из набора источников.
Каждый источник начинается строкой вида
[SRC:домен | W:вес | URL:адрес | DATE:дата]
после которой идёт текст.

Задача:
1) Выдели ключевые факты, события и цифры без воды.
2) Объедини дублирующиеся факты.
3) Для каждого тезиса перечисли источники с весами: [evidence: domain1(w=0.95); domain2(w=1.00)]
   и поддержку: support = min(1.00, сумма весов уникальных доменов), округлить до 2 знаков.
4) Если версии факта расходятся, отметь конфликт и отдай приоритет версии с большим support.

Выведи маркированный список тезисов. Каждый тезис заканчивается блоком
[evidence: ...] [support: 0.xx]

Источники:
---
{{.chunk_texts}}
---`, []string{"context_query", "chunk_texts"})

var finalSummaryPrompt = prompts.NewPromptTemplate(`Ты экспертный аналитик. По промежуточным отчётам подготовь итоговую сводку по теме '{{.context_query}}' с учётом весов источников.

Правила:
1) Объедини повторяющиеся тезисы и нормализуй формулировки.
2) Для каждого итогового факта посчитай aggregated_support = min(1.00, сумма весов уникальных подтверждающих источников), округлить до 2 знаков.
3) Расхождения отмечай явно. Основная версия выбирается по большему aggregated_support, при равенстве по более свежей дате.
4) Структура:
   - Ключевые выводы (5-10 пунктов), у каждого [evidence: ...] [support: 0.xx].
   - Детализация по блокам: события, финансы и право, партнёры и контрагенты, география и активы.
   - Риски и возможности с обоснованием и support.
5) В конце таблица источников:

| Источник (домен) | URL | Вес (w) | Роль (подтверждение/уточнение/конфликт) | Какие данные использованы |
|---|---|---|---|---|

Пиши по-русски, аналитическим деловым стилем.

Промежуточные отчёты:
---
{{.combined_summaries}}
---`, []string{"context_query", "combined_summaries"})
